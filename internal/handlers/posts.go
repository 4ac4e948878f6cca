package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/apollo-api/internal/dto"
	apierrors "github.com/yukikurage/apollo-api/internal/errors"
	"github.com/yukikurage/apollo-api/internal/middleware"
	"github.com/yukikurage/apollo-api/internal/services"
	"github.com/yukikurage/apollo-api/internal/utils"
)

// PostHandler handles HTTP requests for the posts feed.
type PostHandler struct {
	postService *services.PostService
}

// NewPostHandler creates a new PostHandler.
func NewPostHandler(postService *services.PostService) *PostHandler {
	return &PostHandler{
		postService: postService,
	}
}

// CreatePost creates a post owned by the authenticated user.
func (h *PostHandler) CreatePost(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		apierrors.Unauthorized(c, "")
		return
	}

	var req services.CreatePostInput
	if !bindJSON(c, &req) {
		return
	}

	post, err := h.postService.CreatePost(userID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ToCreatedPostDTO(*post))
}

// DeletePost hides a post of the authenticated user.
func (h *PostHandler) DeletePost(c *gin.Context) {
	userID, postID, ok := postRequest(c)
	if !ok {
		return
	}

	if err := h.postService.DeletePost(userID, postID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.MessageDTO{Message: true})
}

// ListPosts returns a page of the feed.
func (h *PostHandler) ListPosts(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		apierrors.Unauthorized(c, "")
		return
	}

	showBookmarked, _ := strconv.ParseBool(c.Query("showBookmarked"))
	posts, err := h.postService.ListPosts(userID, services.ListPostsInput{
		Pagination:     utils.GetPaginationParams(c),
		OnlyBookmarked: showBookmarked,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ToPostListDTO(posts))
}

// SearchPosts returns posts containing any of the queried chords.
func (h *PostHandler) SearchPosts(c *gin.Context) {
	posts, err := h.postService.SearchPosts(c.QueryArray("query"), utils.GetPaginationParams(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ToPostListDTO(posts))
}

// Like adds the authenticated user to the post's likers.
func (h *PostHandler) Like(c *gin.Context) {
	h.react(c, h.postService.Like)
}

// Unlike removes the authenticated user from the post's likers.
func (h *PostHandler) Unlike(c *gin.Context) {
	h.react(c, h.postService.Unlike)
}

// Bookmark adds the post to the authenticated user's bookmarks.
func (h *PostHandler) Bookmark(c *gin.Context) {
	h.react(c, h.postService.Bookmark)
}

// Unbookmark removes the post from the authenticated user's bookmarks.
func (h *PostHandler) Unbookmark(c *gin.Context) {
	h.react(c, h.postService.Unbookmark)
}

func (h *PostHandler) react(c *gin.Context, apply func(userID, postID uint64) error) {
	userID, postID, ok := postRequest(c)
	if !ok {
		return
	}

	if err := apply(userID, postID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.MessageDTO{Message: true})
}

// postRequest reads the caller and the :id path parameter.
func postRequest(c *gin.Context) (uint64, uint64, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		apierrors.Unauthorized(c, "")
		return 0, 0, false
	}

	postID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		apierrors.BadRequest(c, services.ErrInvalidRequest.Error())
		return 0, 0, false
	}
	return userID, postID, true
}
