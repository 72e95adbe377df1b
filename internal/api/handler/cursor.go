package handler

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

const cursorPrefix = "job:"

// DecodeJobCursor returns the job id a page continues after. An empty cursor is 0.
func DecodeJobCursor(cursorStr string) (int64, error) {
	if cursorStr == "" {
		return 0, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(cursorStr)
	if err != nil {
		return 0, fmt.Errorf("invalid cursor encoding: %w", err)
	}

	raw, ok := strings.CutPrefix(string(decoded), cursorPrefix)
	if !ok {
		return 0, fmt.Errorf("invalid cursor format")
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid job id in cursor")
	}

	return id, nil
}

// EncodeJobCursor builds the opaque cursor for the page after jobID
func EncodeJobCursor(jobID int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(cursorPrefix + strconv.FormatInt(jobID, 10)))
}
