// Package archive keeps a PII-reduced copy of every paid booking in S3.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/wolfman30/homevisit-booking/internal/payments"
	"github.com/wolfman30/homevisit-booking/pkg/logging"
)

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Store archives paid bookings to S3.
type Store struct {
	bucket   string
	s3Client S3API
	logger   *logging.Logger
	now      func() time.Time
}

// NewStore creates an archive Store. If bucket is empty, all operations are no-ops.
func NewStore(s3Client S3API, bucket string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{bucket: bucket, s3Client: s3Client, logger: logger, now: time.Now}
}

// Enabled returns true if archival is configured (bucket is set).
func (s *Store) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

// NotifyPaid archives the receipt.
func (s *Store) NotifyPaid(ctx context.Context, receipt payments.Receipt) error {
	return s.ArchiveBooking(ctx, RecordFromReceipt(receipt, s.now().UTC()))
}

// RecordFromReceipt builds the archived form of receipt.
func RecordFromReceipt(receipt payments.Receipt, at time.Time) *PaidBookingRecord {
	b := receipt.Booking
	return &PaidBookingRecord{
		Version:     "1.0",
		Reference:   b.Reference,
		PhoneHash:   HashPhone(b.Phone),
		EmailHash:   HashEmail(b.Email),
		Postcode:    b.Postcode,
		VisitDate:   b.VisitDate,
		VisitWindow: b.VisitWindow,
		Summary:     ScrubPII(b.Summary),
		IntentID:    receipt.IntentID,
		ProductName: receipt.ProductName,
		UnitAmount:  receipt.UnitAmount,
		Currency:    receipt.Currency,
		ArchivedAt:  at,
	}
}

// ArchiveBooking writes a record as JSON to S3 and appends to the manifest.
func (s *Store) ArchiveBooking(ctx context.Context, record *PaidBookingRecord) error {
	if !s.Enabled() {
		return nil
	}
	if record.Reference == "" {
		return errors.New("archive: record has no reference")
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("archive: marshal record: %w", err)
	}

	at := record.ArchivedAt
	if at.IsZero() {
		at = s.now().UTC()
	}

	s3Key := fmt.Sprintf("bookings/v1/by-date/%d/%02d/%02d/%s.json",
		at.Year(), at.Month(), at.Day(), record.Reference)

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s3Key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put %s: %w", s3Key, err)
	}

	s.logger.Info("archived paid booking to S3",
		"reference", record.Reference,
		"s3_key", s3Key,
	)

	entry := ManifestEntry{
		Reference:  record.Reference,
		S3Key:      s3Key,
		VisitDate:  record.VisitDate,
		UnitAmount: record.UnitAmount,
		Currency:   record.Currency,
		ArchivedAt: at.Format(time.RFC3339),
	}
	if err := s.AppendManifest(ctx, at, entry); err != nil {
		// the booking object is already written
		s.logger.Warn("failed to append manifest", "error", err, "reference", record.Reference)
	}
	return nil
}

// AppendManifest appends a JSONL line to the manifest for at's month.
// Uses read-modify-write since S3 doesn't support append.
func (s *Store) AppendManifest(ctx context.Context, at time.Time, entry ManifestEntry) error {
	if !s.Enabled() {
		return nil
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("archive: marshal manifest entry: %w", err)
	}

	manifestKey := fmt.Sprintf("bookings/v1/manifests/%d-%02d.jsonl", at.Year(), at.Month())

	var existing []byte
	getResp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(manifestKey),
	})
	switch {
	case err == nil:
		existing, err = io.ReadAll(getResp.Body)
		getResp.Body.Close()
		if err != nil {
			return fmt.Errorf("archive: read manifest: %w", err)
		}
	case isNotFound(err):
		s.logger.Debug("manifest not found, creating new", "key", manifestKey)
	default:
		return fmt.Errorf("archive: s3 get manifest: %w", err)
	}

	var buf bytes.Buffer
	if len(existing) > 0 {
		buf.Write(existing)
		if existing[len(existing)-1] != '\n' {
			buf.WriteByte('\n')
		}
	}
	buf.Write(line)
	buf.WriteByte('\n')

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(manifestKey),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put manifest: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	return errors.As(err, &nsk)
}
