package api

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/turnengine/core/pkg/models"
)

func TestCreateSessionRequestRequiresAgentID(t *testing.T) {
	assert.Error(t, createSessionRequest{}.Validate())
	assert.NoError(t, createSessionRequest{AgentID: "investigator"}.Validate())
}

func TestPostMessageRequestAcceptsTextShorthand(t *testing.T) {
	req := postMessageRequest{Text: "pod is crashlooping"}
	assert.NoError(t, req.Validate())

	parts := req.toContentParts()
	if assert.Len(t, parts, 1) {
		assert.Equal(t, models.ContentText, parts[0].Kind)
		assert.Equal(t, "pod is crashlooping", parts[0].Text)
	}
}

func TestPostMessageRequestRejectsEmptyBody(t *testing.T) {
	assert.Error(t, postMessageRequest{}.Validate())
}

func TestPostMessageRequestValidatesStructuredContent(t *testing.T) {
	req := postMessageRequest{Content: []contentPartRequest{{Kind: "not_a_real_kind"}}}
	assert.Error(t, req.Validate())
}

func TestRegisterWorkerRequestRequiresFields(t *testing.T) {
	assert.Error(t, registerWorkerRequest{}.Validate())

	valid := registerWorkerRequest{ActivityTypes: []string{"StartTurn"}, MaxConcurrency: 2, Hostname: "worker-1"}
	assert.NoError(t, valid.Validate())
	assert.Equal(t, models.TaskStartTurn, valid.toModel().ActivityTypes[0])
}
