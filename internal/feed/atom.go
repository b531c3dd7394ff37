// Package feed reads a channel's public Atom upload feed. The poller prefers
// it over a full provider probe: one cheap HTTP GET yields the recent uploads
// newest first.
package feed

import (
	"encoding/xml"
	"fmt"
	"time"
)

// atomFeed is the subset of YouTube's Atom 1.0 channel feed the poller needs.
type atomFeed struct {
	XMLName xml.Name    `xml:"http://www.w3.org/2005/Atom feed"`
	Title   string      `xml:"title"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	VideoID   string    `xml:"http://www.youtube.com/xml/schemas/2015 videoId"`
	ChannelID string    `xml:"http://www.youtube.com/xml/schemas/2015 channelId"`
	Title     string    `xml:"title"`
	Link      atomLink  `xml:"link"`
	Published time.Time `xml:"published"`
}

type atomLink struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
}

// Upload is one entry of a channel feed.
type Upload struct {
	VideoID     string
	Title       string
	URL         string
	PublishedAt time.Time
}

// parseChannelFeed extracts uploads from raw Atom XML, preserving the feed's
// newest-first order. Entries without a video ID are skipped.
func parseChannelFeed(rawXML []byte) ([]Upload, error) {
	var feed atomFeed
	if err := xml.Unmarshal(rawXML, &feed); err != nil {
		return nil, fmt.Errorf("unmarshal atom feed: %w", err)
	}

	uploads := make([]Upload, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		if entry.VideoID == "" {
			continue
		}
		url := entry.Link.Href
		if url == "" {
			url = fmt.Sprintf("https://www.youtube.com/watch?v=%s", entry.VideoID)
		}
		uploads = append(uploads, Upload{
			VideoID:     entry.VideoID,
			Title:       entry.Title,
			URL:         url,
			PublishedAt: entry.Published,
		})
	}
	return uploads, nil
}
