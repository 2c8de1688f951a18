package store

import (
	"errors"

	"github.com/user/healthchat/internal/types"
)

var ErrInvalidRecord = errors.New("record needs subject, resource type and id")

func validate(subject types.SubjectID, rec types.Record) error {
	if subject == "" || rec.ResourceType == "" || rec.ID == "" {
		return ErrInvalidRecord
	}
	return nil
}
