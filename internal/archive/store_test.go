package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/homevisit-booking/internal/handoff"
	"github.com/wolfman30/homevisit-booking/internal/payments"
)

// mockS3Client records PutObject/GetObject calls for testing.
type mockS3Client struct {
	putCalls []putCall
	objects  map[string][]byte
	getErr   error
}

type putCall struct {
	bucket string
	key    string
	body   []byte
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, _ := io.ReadAll(input.Body)
	m.putCalls = append(m.putCalls, putCall{
		bucket: *input.Bucket,
		key:    *input.Key,
		body:   body,
	})
	m.objects[*input.Key] = body
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	data, ok := m.objects[*input.Key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewReader(data)),
	}, nil
}

func testReceipt() payments.Receipt {
	return payments.Receipt{
		Booking: handoff.BookingRecord{
			Reference:   "REF1",
			FirstName:   "Jo",
			Surname:     "Lee",
			Phone:       "07700 900123",
			Email:       "jo@example.com",
			Postcode:    "SW1A 1AA",
			VisitDate:   "2024-05-01",
			VisitWindow: "08:00–12:00",
			Summary:     "Boiler service. Call 07700 900123 on arrival",
		},
		IntentID:    "pi_1",
		ProductName: "Boiler Service",
		UnitAmount:  2500,
		Currency:    "gbp",
	}
}

func TestStore_NotifyPaid(t *testing.T) {
	mock := newMockS3()
	store := NewStore(mock, "test-bucket", nil)
	store.now = func() time.Time { return time.Date(2024, 4, 28, 15, 0, 0, 0, time.UTC) }

	require.NoError(t, store.NotifyPaid(context.Background(), testReceipt()))

	// booking object + manifest
	require.Len(t, mock.putCalls, 2)
	assert.Equal(t, "test-bucket", mock.putCalls[0].bucket)
	assert.Equal(t, "bookings/v1/by-date/2024/04/28/REF1.json", mock.putCalls[0].key)

	var decoded PaidBookingRecord
	require.NoError(t, json.Unmarshal(mock.putCalls[0].body, &decoded))
	assert.Equal(t, "REF1", decoded.Reference)
	assert.Equal(t, HashPhone("07700900123"), decoded.PhoneHash)
	assert.Equal(t, "Boiler service. Call [PHONE] on arrival", decoded.Summary)
	assert.NotContains(t, string(mock.putCalls[0].body), "jo@example.com")
	assert.NotContains(t, string(mock.putCalls[0].body), "Lee")

	assert.Equal(t, "bookings/v1/manifests/2024-04.jsonl", mock.putCalls[1].key)
	var entry ManifestEntry
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(mock.putCalls[1].body), &entry))
	assert.Equal(t, "REF1", entry.Reference)
	assert.Equal(t, int64(2500), entry.UnitAmount)
}

func TestStore_Disabled(t *testing.T) {
	store := NewStore(nil, "", nil)
	assert.False(t, store.Enabled())
	assert.NoError(t, store.NotifyPaid(context.Background(), testReceipt()))
}

func TestStore_RequiresReference(t *testing.T) {
	store := NewStore(newMockS3(), "test-bucket", nil)
	assert.Error(t, store.ArchiveBooking(context.Background(), &PaidBookingRecord{}))
}

func TestStore_ManifestAppend(t *testing.T) {
	mock := newMockS3()
	store := NewStore(mock, "test-bucket", nil)
	at := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.AppendManifest(context.Background(), at, ManifestEntry{Reference: "REF1"}))
	require.NoError(t, store.AppendManifest(context.Background(), at, ManifestEntry{Reference: "REF2"}))

	lastPut := mock.putCalls[len(mock.putCalls)-1]
	lines := bytes.Split(bytes.TrimSpace(lastPut.body), []byte("\n"))
	assert.Len(t, lines, 2)
}

func TestStore_ManifestReadFailureKeepsBooking(t *testing.T) {
	mock := newMockS3()
	mock.getErr = errors.New("access denied")
	store := NewStore(mock, "test-bucket", nil)

	require.NoError(t, store.NotifyPaid(context.Background(), testReceipt()))
	assert.Len(t, mock.putCalls, 1, "booking written, manifest skipped")
}
