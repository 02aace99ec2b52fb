package certificates

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/NoviyantoPutraR/lms-kerjabaik-sub002/pkg/pdf"
	"github.com/NoviyantoPutraR/lms-kerjabaik-sub002/pkg/security"
)

const testSecret = "test-secret"

// newIssuanceService wires the real ledger, directory and renderer on SQLite.
func newIssuanceService(t *testing.T, db *gorm.DB) Service {
	t.Helper()
	opts := pdf.DefaultOptions()
	opts.Compress = false
	return NewService(
		security.NewTokenValidator(testSecret, "", ""),
		NewEnrollmentDirectory(db),
		NewLedger(db, NewNumberingAuthority("KB")),
		NewAssetFetcher(AssetOptions{Timeout: time.Second, MaxBytes: 1 << 20}, nil),
		pdf.NewGenerator(opts, zap.NewNop()),
		nil,
		zap.NewNop(),
	)
}

// utf16be encodes s as text drawn with a UTF-8 font appears in the PDF.
func utf16be(s string) []byte {
	var out []byte
	for _, u := range utf16.Encode([]rune(s)) {
		out = append(out, byte(u>>8), byte(u))
	}
	return out
}

func tokenFor(t *testing.T, f fixture) string {
	t.Helper()
	token, err := security.NewTokenValidator(testSecret, "", "").Issue(f.User.ID, time.Hour)
	require.NoError(t, err)
	return token
}

func TestIssuanceIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	svc := newIssuanceService(t, db)
	f := seedEnrollment(t, db, "Ayu Lestari", "Dasar Pemrograman", 100, nil)
	req := IssueRequest{Token: tokenFor(t, f), CourseID: f.Course.ID}

	first, err := svc.Issue(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.Issue(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, first.Created)
	assert.False(t, second.Created)
	assert.Equal(t, first.Certificate.SerialNumber, second.Certificate.SerialNumber)
	assert.Equal(t, "Ayu Lestari", second.Certificate.LearnerNameSnapshot)
	assert.True(t, bytes.HasPrefix(first.Document, []byte("%PDF-")))
	assert.True(t, bytes.Contains(first.Document, utf16be("AYU LESTARI")))
	assert.True(t, bytes.Contains(first.Document, utf16be("Dasar Pemrograman")))
	assert.True(t, bytes.Contains(first.Document, utf16be(first.Certificate.SerialNumber)))
}

func TestIssuanceKeepsNameSnapshot(t *testing.T) {
	db := newTestDB(t)
	svc := newIssuanceService(t, db)
	f := seedEnrollment(t, db, "Ayu Lestari", "Dasar Pemrograman", 100, nil)
	req := IssueRequest{Token: tokenFor(t, f), CourseID: f.Course.ID}

	first, err := svc.Issue(context.Background(), req)
	require.NoError(t, err)

	require.NoError(t, db.Model(&User{}).Where("id = ?", f.User.ID).Update("full_name", "Ayu Lestari Wibowo").Error)

	second, err := svc.Issue(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.Certificate.SerialNumber, second.Certificate.SerialNumber)
	assert.Equal(t, "Ayu Lestari", second.Certificate.LearnerNameSnapshot)
	assert.True(t, bytes.Contains(second.Document, utf16be("AYU LESTARI")))
	assert.False(t, bytes.Contains(second.Document, utf16be("WIBOWO")))
}

func TestIssuanceCompletionGate(t *testing.T) {
	db := newTestDB(t)
	svc := newIssuanceService(t, db)

	almost := seedEnrollment(t, db, "Budi Santoso", "Basis Data", 99.4, nil)
	_, err := svc.Issue(context.Background(), IssueRequest{Token: tokenFor(t, almost), CourseID: almost.Course.ID})
	assert.ErrorIs(t, err, ErrIncompleteCourse)

	var count int64
	require.NoError(t, db.Model(&Certificate{}).Count(&count).Error)
	assert.Zero(t, count)

	rounded := seedEnrollment(t, db, "Citra Dewi", "Basis Data", 99.6, nil)
	result, err := svc.Issue(context.Background(), IssueRequest{Token: tokenFor(t, rounded), CourseID: rounded.Course.ID})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Certificate.SerialNumber)
}

func TestIssuanceRejectsUnenrolledLearner(t *testing.T) {
	db := newTestDB(t)
	svc := newIssuanceService(t, db)
	enrolled := seedEnrollment(t, db, "Ayu Lestari", "Dasar Pemrograman", 100, nil)
	other := seedEnrollment(t, db, "Budi Santoso", "Basis Data", 100, nil)

	_, err := svc.Issue(context.Background(), IssueRequest{Token: tokenFor(t, other), CourseID: enrolled.Course.ID})
	assert.ErrorIs(t, err, ErrNotEnrolled)
}

// SQLite runs on a single connection here, so these goroutines are serialised
// and every call after the first takes the find path. The AlreadyExists race
// is covered by TestIssueLostRaceUsesWinner and TestPostgresConcurrentIssuance.
func TestIssuanceSerialisedRequestsShareOneCertificate(t *testing.T) {
	db := newTestDB(t)
	svc := newIssuanceService(t, db)
	f := seedEnrollment(t, db, "Ayu Lestari", "Dasar Pemrograman", 100, nil)
	req := IssueRequest{Token: tokenFor(t, f), CourseID: f.Course.ID}

	const workers = 8
	serials := make([]string, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := svc.Issue(context.Background(), req)
			errs[i] = err
			if err == nil {
				serials[i] = result.Certificate.SerialNumber
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, serials[0], serials[i])
	}

	var count int64
	require.NoError(t, db.Model(&Certificate{}).Where("enrollment_id = ?", f.Enrollment.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, FormatSerial("KB", time.Now().UTC().Year(), f.Course.ID, f.User.ID, 1), serials[0])
}

func TestIssuanceDistinctEnrollmentsGetDistinctSerials(t *testing.T) {
	db := newTestDB(t)
	svc := newIssuanceService(t, db)

	seen := map[string]bool{}
	for _, name := range []string{"Ayu Lestari", "Budi Santoso", "Citra Dewi"} {
		f := seedEnrollment(t, db, name, "Dasar Pemrograman", 100, nil)
		result, err := svc.Issue(context.Background(), IssueRequest{Token: tokenFor(t, f), CourseID: f.Course.ID})
		require.NoError(t, err)
		assert.False(t, seen[result.Certificate.SerialNumber])
		seen[result.Certificate.SerialNumber] = true
	}
}

func TestIssuanceFallsBackWhenBackgroundMissing(t *testing.T) {
	db := newTestDB(t)
	svc := newIssuanceService(t, db)
	f := seedEnrollment(t, db, "Ayu Lestari", "Dasar Pemrograman", 100, &CertificateConfig{
		BackgroundURL: "http://127.0.0.1:1/missing.png",
	})

	result, err := svc.Issue(context.Background(), IssueRequest{Token: tokenFor(t, f), CourseID: f.Course.ID})

	require.NoError(t, err)
	assert.True(t, result.Degraded)
	assert.True(t, bytes.Contains(result.Document, utf16be("SERTIFIKAT PENYELESAIAN")))
}

func truncatedPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 180, B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()[:buf.Len()/2]
}

func TestIssuanceFallsBackWhenBackgroundTruncated(t *testing.T) {
	data := truncatedPNG(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	db := newTestDB(t)
	svc := newIssuanceService(t, db)
	f := seedEnrollment(t, db, "Ayu Lestari", "Dasar Pemrograman", 100, &CertificateConfig{
		BackgroundURL: srv.URL + "/bg.png",
	})

	result, err := svc.Issue(context.Background(), IssueRequest{Token: tokenFor(t, f), CourseID: f.Course.ID})

	require.NoError(t, err)
	assert.True(t, result.Degraded)
	assert.Contains(t, string(result.Document), "/Count 1")
	assert.True(t, bytes.Contains(result.Document, utf16be("SERTIFIKAT PENYELESAIAN")))
	assert.True(t, bytes.Contains(result.Document, utf16be("AYU LESTARI")))
}
