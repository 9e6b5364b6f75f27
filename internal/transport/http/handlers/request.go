package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/arklim/accounts-iam/internal/core/domain"
	"github.com/arklim/accounts-iam/internal/transport/http/middleware"
	"github.com/arklim/accounts-iam/internal/usecase"
)

// listQuery reads ?search=&module=&sort=&direction=&page=&per_page=. Malformed numbers fall
// back to the defaults applied by the services.
func listQuery(c *gin.Context) usecase.ListQuery {
	page, _ := strconv.Atoi(c.Query("page"))
	size, _ := strconv.Atoi(c.Query("per_page"))
	return usecase.ListQuery{
		Search:    c.Query("search"),
		Module:    c.Query("module"),
		Sort:      c.Query("sort"),
		Direction: c.Query("direction"),
		Page:      page,
		PageSize:  size,
	}
}

// authorize evaluates a policy decision for the authenticated actor and writes the error
// response when it fails.
func authorize(c *gin.Context, decide func(actor domain.RoleHolder) (bool, error)) bool {
	actor, ok := middleware.Actor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return false
	}
	if err := usecase.Authorize(decide(actor)); err != nil {
		RespondError(c, err)
		return false
	}
	return true
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request payload"))
		return false
	}
	return true
}

func chain(middlewares []gin.HandlerFunc, handler gin.HandlerFunc) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, 0, len(middlewares)+1)
	out = append(out, middlewares...)
	return append(out, handler)
}
