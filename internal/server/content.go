package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	contentdomain "github.com/studygrove/studygrove/internal/content/domain"
	contentservice "github.com/studygrove/studygrove/internal/content/service"
)

type createPostRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type createCommentRequest struct {
	Body      string `json:"body"`
	ReplyToID *int64 `json:"reply_to_id"`
}

type likeRequest struct {
	SubjectType string `json:"subject_type"`
	SubjectID   int64  `json:"subject_id"`
}

func (s *Server) createPost(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	var req createPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	post, err := s.contentSvc.CreatePost(c.Request.Context(), userID, req.Title, req.Body)
	if err != nil {
		s.respondContentError(c, err)
		return
	}
	c.JSON(http.StatusCreated, post)
}

func (s *Server) deletePost(c *gin.Context) {
	if _, ok := currentUserID(c); !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	id, ok := pathID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	if err := s.contentSvc.DeletePost(c.Request.Context(), id); err != nil {
		s.respondContentError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) createComment(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	postID, ok := pathID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req createCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	comment, err := s.contentSvc.CreateComment(c.Request.Context(), userID, postID, req.ReplyToID, req.Body)
	if err != nil {
		s.respondContentError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

func (s *Server) deleteComment(c *gin.Context) {
	if _, ok := currentUserID(c); !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	id, ok := pathID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	if err := s.contentSvc.DeleteComment(c.Request.Context(), id); err != nil {
		s.respondContentError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) addLike(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	var req likeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	err := s.contentSvc.AddLike(c.Request.Context(), userID, contentdomain.SubjectType(req.SubjectType), req.SubjectID)
	if err != nil {
		s.respondContentError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) removeLike(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	var req likeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	err := s.contentSvc.RemoveLike(c.Request.Context(), userID, contentdomain.SubjectType(req.SubjectType), req.SubjectID)
	if err != nil {
		s.respondContentError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) respondContentError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, contentdomain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, contentdomain.ErrInvalidSubject),
		errors.Is(err, contentservice.ErrEmptyTitle),
		errors.Is(err, contentservice.ErrEmptyBody),
		errors.Is(err, contentservice.ErrReplyMismatch):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "operation failed"})
	}
}
