package authz

import (
	"biogy.com/biogyapi/pkg/apperror"
	"biogy.com/biogyapi/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// GetActor retrieves the authenticated actor from the context.
func GetActor(c *gin.Context) (Actor, error) {
	userIDStr, exists := c.Get(response.ContextUserID)
	if !exists {
		return Actor{}, apperror.ErrUnauthorized
	}

	userID, err := uuid.Parse(userIDStr.(string))
	if err != nil {
		return Actor{}, apperror.ErrUnauthorized
	}

	return Actor{ID: userID, Role: c.GetString(response.ContextUserRole)}, nil
}

// OptionalActor returns the zero Actor for anonymous requests.
func OptionalActor(c *gin.Context) Actor {
	actor, err := GetActor(c)
	if err != nil {
		return Actor{}
	}
	return actor
}
