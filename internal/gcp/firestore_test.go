package gcp

import (
	"testing"

	"cloud.google.com/go/firestore"
	"github.com/stretchr/testify/assert"
)

func TestFields_Updates(t *testing.T) {
	fields := Fields{
		"status":       "FAILED",
		"errorDetails": "",
		"storyCount":   2,
	}
	assert.Equal(t, []firestore.Update{
		{Path: "status", Value: "FAILED"},
		{Path: "storyCount", Value: 2},
	}, fields.Updates())

	assert.Empty(t, Fields{"artifactsPrefix": ""}.Updates())
}
