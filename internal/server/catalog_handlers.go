package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/openshelf/librarium/internal/catalog"
)

func (h *httpHandler) handleListAuthors(c *gin.Context) {
	authors, err := h.catalog.ListAuthors(c.Request.Context())
	if err != nil {
		h.writeCatalogError(c, err)
		return
	}
	c.JSON(http.StatusOK, authors)
}

func (h *httpHandler) handleGetAuthor(c *gin.Context) {
	author, err := h.catalog.GetAuthor(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeCatalogError(c, err)
		return
	}
	c.JSON(http.StatusOK, author)
}

func (h *httpHandler) handleCreateAuthor(c *gin.Context) {
	var input catalog.AuthorInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	author, err := h.catalog.CreateAuthor(c.Request.Context(), input)
	if err != nil {
		h.writeCatalogError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":  "author created successfully",
		"authorId": author.ID,
	})
}

func (h *httpHandler) handleUpdateAuthor(c *gin.Context) {
	var input catalog.AuthorInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if _, err := h.catalog.UpdateAuthor(c.Request.Context(), c.Param("id"), input); err != nil {
		h.writeCatalogError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "author updated successfully"})
}

func (h *httpHandler) handleDeleteAuthor(c *gin.Context) {
	if err := h.catalog.DeleteAuthor(c.Request.Context(), c.Param("id")); err != nil {
		h.writeCatalogError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "author deleted successfully"})
}

func (h *httpHandler) handleListBooks(c *gin.Context) {
	books, err := h.catalog.ListBooks(c.Request.Context())
	if err != nil {
		h.writeCatalogError(c, err)
		return
	}
	c.JSON(http.StatusOK, books)
}

func (h *httpHandler) handleGetBook(c *gin.Context) {
	book, err := h.catalog.GetBook(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeCatalogError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (h *httpHandler) handleCreateBook(c *gin.Context) {
	var input catalog.BookInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	book, err := h.catalog.CreateBook(c.Request.Context(), input)
	if err != nil {
		h.writeCatalogError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "book created successfully",
		"bookId":  book.ID,
	})
}

func (h *httpHandler) handleUpdateBook(c *gin.Context) {
	var input catalog.BookInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if _, err := h.catalog.UpdateBook(c.Request.Context(), c.Param("id"), input); err != nil {
		h.writeCatalogError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "book updated successfully"})
}

func (h *httpHandler) handleDeleteBook(c *gin.Context) {
	if err := h.catalog.DeleteBook(c.Request.Context(), c.Param("id")); err != nil {
		h.writeCatalogError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "book deleted successfully"})
}

func (h *httpHandler) writeCatalogError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, catalog.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, catalog.ErrAuthorNotFound):
		c.JSON(http.StatusBadRequest, gin.H{"error": "author not found"})
	case errors.Is(err, catalog.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
	default:
		h.logger.Error("catalog operation failed", zap.Error(err))
		var serviceErr *catalog.ServiceError
		if errors.As(err, &serviceErr) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "code": serviceErr.Code()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
