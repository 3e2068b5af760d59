package youtube

import "time"

// Wire shapes for the Data API responses, trimmed to the fields the
// normalized types carry.

type searchListResponse struct {
	Items []searchItem `json:"items"`
}

type searchItem struct {
	ID struct {
		VideoID string `json:"videoId"`
	} `json:"id"`
	Snippet videoSnippet `json:"snippet"`
}

type videoSnippet struct {
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	ChannelID    string    `json:"channelId"`
	ChannelTitle string    `json:"channelTitle"`
	PublishedAt  time.Time `json:"publishedAt"`
	Tags         []string  `json:"tags"`
}

type videoListResponse struct {
	Items []videoItem `json:"items"`
}

type videoItem struct {
	ID             string       `json:"id"`
	Snippet        videoSnippet `json:"snippet"`
	ContentDetails struct {
		Duration string `json:"duration"`
	} `json:"contentDetails"`
	// Statistics arrive as decimal strings, not numbers.
	Statistics struct {
		ViewCount    string `json:"viewCount"`
		LikeCount    string `json:"likeCount"`
		CommentCount string `json:"commentCount"`
	} `json:"statistics"`
}

type commentThreadsResponse struct {
	Items []commentThread `json:"items"`
}

type commentThread struct {
	Snippet struct {
		TopLevelComment struct {
			ID      string `json:"id"`
			Snippet struct {
				AuthorDisplayName string    `json:"authorDisplayName"`
				TextDisplay       string    `json:"textDisplay"`
				LikeCount         int       `json:"likeCount"`
				PublishedAt       time.Time `json:"publishedAt"`
			} `json:"snippet"`
		} `json:"topLevelComment"`
	} `json:"snippet"`
}

type captionListResponse struct {
	Items []captionItem `json:"items"`
}

type captionItem struct {
	ID      string `json:"id"`
	Snippet struct {
		Language  string `json:"language"`
		Name      string `json:"name"`
		TrackKind string `json:"trackKind"`
	} `json:"snippet"`
}
