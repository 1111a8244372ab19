package artifact

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPDFRenderer_RenderTicket(t *testing.T) {
	r, err := NewPDFRenderer(t.TempDir())
	require.NoError(t, err)

	uc := UnitContext{
		IntentID:    uuid.New(),
		UnitID:      1001,
		Seq:         2,
		Total:       3,
		EventName:   "Gala Night",
		Venue:       "City Hall",
		EventDate:   time.Date(2026, 12, 31, 19, 0, 0, 0, time.UTC),
		TicketType:  "Regular",
		BuyerName:   "Asha",
		Credential:  "c2VhbGVkLXBheWxvYWQ",
		BannerPaths: []string{"/does/not/exist.png"},
	}
	path, err := r.RenderTicket(context.Background(), uc)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(r.dir, uc.IntentID.String()+"-1001.pdf"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
}

func TestPDFRenderer_RequiresCredential(t *testing.T) {
	r, err := NewPDFRenderer(t.TempDir())
	require.NoError(t, err)

	_, err = r.RenderTicket(context.Background(), UnitContext{IntentID: uuid.New(), UnitID: 1})
	assert.Error(t, err)
}
