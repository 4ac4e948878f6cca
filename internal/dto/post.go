package dto

import (
	"encoding/json"
	"time"

	"github.com/yukikurage/apollo-api/internal/models"
)

// PostDTO represents a post in the feed
type PostDTO struct {
	ID              uint64          `json:"_id"`
	PostCreatorID   uint64          `json:"postCreatorId"`
	Description     string          `json:"description"`
	Chords          []string        `json:"chords"`
	Voicings        json.RawMessage `json:"voicings"`
	UsersLiked      []uint64        `json:"usersLiked"`
	UsersBookmarked []uint64        `json:"usersBookmarked"`
	DateCreated     time.Time       `json:"dateCreated"`
}

// CreatedPostDTO is returned when a post is created
type CreatedPostDTO struct {
	ID          uint64          `json:"_id"`
	Description string          `json:"description"`
	Chords      []string        `json:"chords"`
	Voicings    json.RawMessage `json:"voicings"`
	DateCreated time.Time       `json:"dateCreated"`
}

// PostListDTO wraps a page of posts
type PostListDTO struct {
	Posts []PostDTO `json:"posts"`
}

// ToPostDTO converts a post with likes and bookmarks preloaded to DTO
func ToPostDTO(post models.Post) PostDTO {
	return PostDTO{
		ID:              post.ID,
		PostCreatorID:   post.CreatorID,
		Description:     post.Description,
		Chords:          chordsOf(post),
		Voicings:        voicingsOf(post),
		UsersLiked:      post.LikerIDs(),
		UsersBookmarked: post.BookmarkerIDs(),
		DateCreated:     post.DateCreated,
	}
}

// ToCreatedPostDTO converts a new post to DTO
func ToCreatedPostDTO(post models.Post) CreatedPostDTO {
	return CreatedPostDTO{
		ID:          post.ID,
		Description: post.Description,
		Chords:      chordsOf(post),
		Voicings:    voicingsOf(post),
		DateCreated: post.DateCreated,
	}
}

// ToPostListDTO converts a page of posts to DTO
func ToPostListDTO(posts []models.Post) PostListDTO {
	dtos := make([]PostDTO, len(posts))
	for i, post := range posts {
		dtos[i] = ToPostDTO(post)
	}
	return PostListDTO{Posts: dtos}
}

func chordsOf(post models.Post) []string {
	if post.Chords == nil {
		return []string{}
	}
	return post.Chords
}

func voicingsOf(post models.Post) json.RawMessage {
	if len(post.Voicings) == 0 {
		return json.RawMessage("[]")
	}
	return json.RawMessage(post.Voicings)
}
