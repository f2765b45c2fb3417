package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akriventsev/potter-repository/framework/adapters/messagebus"
	"github.com/akriventsev/potter-repository/framework/persistence"
)

func TestBootstrapChangeStreamHub(t *testing.T) {
	tests := []struct {
		name       string
		eventsType string
		wantHubPub bool
	}{
		{"without broker", "none", true},
		{"inmemory broker is the hub", "inmemory", true},
		{"kafka broker next to the hub", "kafka", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv("POTTER_LOG_LEVEL", "error")
			t.Setenv("POTTER_EVENTS_TYPE", tt.eventsType)
			t.Setenv("POTTER_EVENTS_STREAM", "true")

			ctx := context.Background()
			a, err := bootstrap(ctx, "")
			require.NoError(t, err)
			defer a.close(ctx)

			require.NotNil(t, a.hub)
			require.Len(t, a.components, 1)
			if tt.wantHubPub {
				assert.Same(t, a.hub, a.components[0])
			} else {
				assert.IsType(t, &messagebus.MultiPublisher{}, a.components[0])
			}

			fw, err := a.framework()
			require.NoError(t, err)
			assert.NotNil(t, fw)
		})
	}
}

func TestBootstrapStreamReceivesCommits(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("POTTER_LOG_LEVEL", "error")
	t.Setenv("POTTER_EVENTS_STREAM", "true")

	ctx := context.Background()
	a, err := bootstrap(ctx, "")
	require.NoError(t, err)
	defer a.close(ctx)

	var got []messagebus.ChangeEvent
	unsubscribe := a.hub.Subscribe("orders", func(_ context.Context, e messagebus.ChangeEvent) {
		got = append(got, e)
	})
	defer unsubscribe()

	require.NoError(t, a.data.Commit(ctx, []persistence.Change{
		{Kind: persistence.ChangeInsert, Collection: "orders", ID: "o1", Data: []byte(`{"id":"o1"}`)},
	}))
	require.Len(t, got, 1)
	assert.Equal(t, "o1", got[0].ID)
	assert.Equal(t, persistence.ChangeInsert, got[0].Kind)
}

func TestBootstrapWithoutStream(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("POTTER_LOG_LEVEL", "error")

	ctx := context.Background()
	a, err := bootstrap(ctx, "")
	require.NoError(t, err)
	defer a.close(ctx)

	assert.Nil(t, a.hub)
	assert.Empty(t, a.components)
}
