package snapshots

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSQLContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		valid   bool
	}{
		{
			name:    "real dump",
			content: "-- dump\nDROP TABLE IF EXISTS `featherpanel_users`;\nCREATE TABLE `featherpanel_users` (id INT);\nINSERT INTO `featherpanel_users` VALUES (1);",
			valid:   true,
		},
		{
			name:    "empty",
			content: "",
			valid:   false,
		},
		{
			name:    "whitespace only",
			content: "   \n\t  ",
			valid:   false,
		},
		{
			name:    "html error page",
			content: "<!DOCTYPE html>\n<html><body><h1>404 Not Found</h1></body></html>",
			valid:   false,
		},
		{
			name:    "html without doctype",
			content: "<html><head><title>Error</title></head></html>",
			valid:   false,
		},
		{
			name:    "json error body",
			content: `{"error": "unauthorized", "message": "token expired"}`,
			valid:   false,
		},
		{
			name:    "no sql keywords",
			content: "just some random text that is definitely not a database dump",
			valid:   false,
		},
		{
			name:    "set statement only",
			content: "SET FOREIGN_KEY_CHECKS=0;",
			valid:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSQLContent(tt.content)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
