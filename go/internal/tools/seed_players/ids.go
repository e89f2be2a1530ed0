package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

func parseIDs(csv string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := uuid.Parse(part)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
