package models

import (
	"time"

	"gorm.io/datatypes"
)

// Post is a feed entry. Visibility=false is a soft delete; rows are never removed.
type Post struct {
	ID          uint64                      `gorm:"primarykey;autoIncrement:false" json:"_id"`
	CreatorID   uint64                      `gorm:"not null;index" json:"postCreatorId"`
	Description string                      `gorm:"type:text;not null" json:"description"`
	Chords      datatypes.JSONSlice[string] `json:"chords"`
	Voicings    datatypes.JSON              `json:"voicings"`
	Visibility  bool                        `gorm:"not null;default:true;index" json:"-"`
	DateCreated time.Time                   `gorm:"not null;index" json:"dateCreated"`

	// Relations
	ChordIndex []PostChord    `gorm:"foreignKey:PostID" json:"-"`
	Likes      []PostLike     `gorm:"foreignKey:PostID" json:"-"`
	Bookmarks  []PostBookmark `gorm:"foreignKey:PostID" json:"-"`
}

// PostChord indexes a post by each of its chords for membership search.
type PostChord struct {
	PostID uint64 `gorm:"primarykey" json:"post_id"`
	Chord  string `gorm:"primarykey;type:varchar(64)" json:"chord"`
}

type PostLike struct {
	PostID    uint64    `gorm:"primarykey" json:"post_id"`
	UserID    uint64    `gorm:"primarykey" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

type PostBookmark struct {
	PostID    uint64    `gorm:"primarykey" json:"post_id"`
	UserID    uint64    `gorm:"primarykey" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// LikerIDs returns the ids of users who liked the post (requires Likes preloaded).
func (p *Post) LikerIDs() []uint64 {
	ids := make([]uint64, len(p.Likes))
	for i, l := range p.Likes {
		ids[i] = l.UserID
	}
	return ids
}

// BookmarkerIDs returns the ids of users who bookmarked the post (requires Bookmarks preloaded).
func (p *Post) BookmarkerIDs() []uint64 {
	ids := make([]uint64, len(p.Bookmarks))
	for i, b := range p.Bookmarks {
		ids[i] = b.UserID
	}
	return ids
}
