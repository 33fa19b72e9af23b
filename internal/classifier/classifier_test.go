package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInferTopics(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "docker scenario",
			text: "user: Docker compose failing assistant: Check docker-compose logs",
			want: []string{"Docker-First Development"},
		},
		{
			name: "single keyword is not enough",
			text: "we talked about a docker image once",
			want: []string{"General"},
		},
		{
			name: "no keywords falls back",
			text: "what should I cook for dinner tonight",
			want: []string{"General"},
		},
		{
			name: "multiple topics sorted",
			text: "add jwt authentication to the fastapi endpoint and cache the result for performance",
			want: []string{"API Design", "Performance Optimization", "Security"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InferTopics(tt.text, nil))
		})
	}
}

func TestInferTopicsKeepsExisting(t *testing.T) {
	got := InferTopics("docker docker-compose container", []string{"Custom Label"})
	assert.Equal(t, []string{"Custom Label"}, got)

	// blank entries do not count as caller-supplied topics
	got = InferTopics("docker docker-compose container", []string{"  ", ""})
	assert.Equal(t, []string{"Docker-First Development"}, got)
}

func TestInferProject(t *testing.T) {
	assert.Equal(t, "explicit-wins",
		InferProject(map[string]interface{}{"project": "meta"}, nil, "", "explicit-wins"))

	assert.Equal(t, "meta-project",
		InferProject(map[string]interface{}{"project": "meta-project"}, map[string]interface{}{"repo": "content-repo"}, "", ""))

	assert.Equal(t, "content-repo",
		InferProject(nil, map[string]interface{}{"repo": "content-repo"}, "", ""))

	assert.Equal(t, "recollect",
		InferProject(nil, nil, "we were debugging the recollect search ranking", ""))

	assert.Equal(t, "",
		InferProject(nil, nil, "nothing identifiable here", ""))
}
