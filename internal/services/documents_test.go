package services

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/diewo77/vtc-exchange/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePDF = "%PDF-1.4\n1 0 obj << /Type /Catalog >> endobj\ntrailer << /Root 1 0 R >>\n%%EOF\n"

func upload(t *testing.T, env *testEnv, d *models.Driver, typ, content string) *models.Document {
	t.Helper()
	doc, err := env.svc.Documents.Upload(ctx, d, UploadInput{Type: typ, OriginalName: "permis.pdf", Body: strings.NewReader(content)})
	require.NoError(t, err)
	return doc
}

func TestUploadSniffsContent(t *testing.T) {
	env := setup(t)
	a := env.driver(t, "alice")

	doc := upload(t, env, a, "permis", samplePDF)
	assert.Equal(t, "application/pdf", doc.MimeType)
	assert.EqualValues(t, len(samplePDF), doc.Size)
	assert.Equal(t, models.DocumentStatusPending, doc.Status)
	assert.True(t, strings.HasSuffix(doc.Filename, ".pdf"))

	_, err := env.svc.Documents.Upload(ctx, a, UploadInput{Type: "permis", OriginalName: "evil.pdf", Body: strings.NewReader("#!/bin/sh\necho hi\n")})
	assertField(t, err, "file", "unsupported_type")
	_, err = env.svc.Documents.Upload(ctx, a, UploadInput{Type: "passeport", Body: strings.NewReader(samplePDF)})
	assertField(t, err, "type", "invalid_choice")
	_, err = env.svc.Documents.Upload(ctx, a, UploadInput{Type: "kbis", Body: strings.NewReader("")})
	assertField(t, err, "file", "required")

	docs, err := env.svc.Documents.List(ctx, a)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestUploadSizeLimit(t *testing.T) {
	env := setup(t)
	a := env.driver(t, "alice")
	env.svc.Documents.maxSize = 1024

	big := samplePDF + strings.Repeat("0", 2048)
	_, err := env.svc.Documents.Upload(ctx, a, UploadInput{Type: "kbis", Body: strings.NewReader(big)})
	assertField(t, err, "file", "too_large")
	assert.Zero(t, env.count(t, &models.Document{}, ""))
}

func TestDocumentAccessAndDelete(t *testing.T) {
	env := setup(t)
	a := env.driver(t, "alice")
	b := env.driver(t, "bob")
	doc := upload(t, env, a, "assurance", samplePDF)

	_, _, err := env.svc.Documents.Open(ctx, b, doc.ID)
	assertKind(t, err, ErrForbidden)

	got, rc, err := env.svc.Documents.Open(ctx, a, doc.ID)
	require.NoError(t, err)
	content, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, samplePDF, string(content))
	assert.Equal(t, doc.ID, got.ID)

	err = env.svc.Documents.Delete(ctx, b, doc.ID)
	assertKind(t, err, ErrForbidden)
	require.NoError(t, env.svc.Documents.Delete(ctx, a, doc.ID))
	assert.Zero(t, env.count(t, &models.Document{}, ""))
}

func TestDocumentReview(t *testing.T) {
	env := setup(t)
	a := env.driver(t, "alice")
	admin := env.driver(t, "admin")
	env.authz.admins[admin.ID] = true
	doc := upload(t, env, a, "carte_vtc", samplePDF)
	own := upload(t, env, admin, "permis", samplePDF)

	_, err := env.svc.Documents.Validate(ctx, a, doc.ID, ReviewInput{Decision: DecisionApprove})
	assertKind(t, err, ErrForbidden)
	_, err = env.svc.Documents.Validate(ctx, admin, own.ID, ReviewInput{Decision: DecisionApprove})
	assertKind(t, err, ErrForbidden)
	_, err = env.svc.Documents.Validate(ctx, admin, doc.ID, ReviewInput{Decision: DecisionReject})
	assertField(t, err, "reason", "required")

	pending, err := env.svc.Documents.ListPending(ctx, Page{})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	approved, err := env.svc.Documents.Validate(ctx, admin, doc.ID, ReviewInput{Decision: DecisionApprove})
	require.NoError(t, err)
	assert.Equal(t, models.DocumentStatusApproved, approved.Status)
	require.NotNil(t, approved.ValidatedByID)
	assert.Equal(t, admin.ID, *approved.ValidatedByID)

	_, err = env.svc.Documents.Validate(ctx, admin, doc.ID, ReviewInput{Decision: DecisionReject, Reason: "illisible"})
	assertKind(t, err, ErrConflict)
	err = env.svc.Documents.Delete(ctx, a, doc.ID)
	assertKind(t, err, ErrConflict)

	_, rc, err := env.svc.Documents.Open(ctx, admin, doc.ID)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
}

func TestDocumentShare(t *testing.T) {
	env := setup(t)
	a := env.driver(t, "alice")
	b := env.driver(t, "bob")
	doc := upload(t, env, a, "kbis", samplePDF)

	_, err := env.svc.Documents.Share(ctx, b, doc.ID, ShareInput{})
	assertKind(t, err, ErrForbidden)
	_, err = env.svc.Documents.Share(ctx, a, doc.ID, ShareInput{TTLHours: 24 * 365})
	assertField(t, err, "ttl_hours", "too_large")

	shared, err := env.svc.Documents.Share(ctx, a, doc.ID, ShareInput{TTLHours: 2})
	require.NoError(t, err)
	require.NotNil(t, shared.ShareToken)
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), *shared.ShareExpiresAt, time.Minute)

	got, rc, err := env.svc.Documents.OpenShared(ctx, *shared.ShareToken)
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = io.Copy(&buf, rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, samplePDF, buf.String())
	assert.Equal(t, doc.ID, got.ID)

	require.NoError(t, env.db.Model(&models.Document{}).Where("id = ?", doc.ID).Update("share_expires_at", time.Now().Add(-time.Minute)).Error)
	_, _, err = env.svc.Documents.OpenShared(ctx, *shared.ShareToken)
	assertKind(t, err, ErrNotFound)
	_, _, err = env.svc.Documents.OpenShared(ctx, "unknown")
	assertKind(t, err, ErrNotFound)
}
