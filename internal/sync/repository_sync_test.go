package sync

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canonsync/internal/core/ports"
	"canonsync/internal/domain"
	"canonsync/internal/identity"
	"canonsync/internal/testutil"
)

type repoFixture struct {
	tenantID      uuid.UUID
	canonicals    *testutil.MemCanonicalRepo
	gitStates     *testutil.MemGitStateRepo
	mappings      *testutil.MemMappingRepo
	workflowFiles *testutil.MemWorkflowFileRepo
	reader        *testutil.StaticRepositoryReader
	syncer        *RepositorySyncer
}

func newRepoFixture(t *testing.T) *repoFixture {
	t.Helper()
	f := &repoFixture{
		tenantID:      uuid.New(),
		canonicals:    testutil.NewMemCanonicalRepo(),
		gitStates:     testutil.NewMemGitStateRepo(),
		mappings:      testutil.NewMemMappingRepo(),
		workflowFiles: testutil.NewMemWorkflowFileRepo(),
		reader:        &testutil.StaticRepositoryReader{},
	}
	fingerprinter := identity.NewFingerprinter(testutil.NewMemDigestRepo())
	f.syncer = NewRepositorySyncer(f.reader, f.canonicals, f.gitStates, f.workflowFiles, f.mappings, fingerprinter, Options{})
	return f
}

func TestRepositorySync_CreatesWorkflowFromFilenameConvention(t *testing.T) {
	f := newRepoFixture(t)
	canonicalID := uuid.MustParse("aaaa1111-0000-4000-8000-000000000001")
	f.reader.Files = []ports.RepositoryFile{{
		Path:      canonicalID.String() + ".json",
		Content:   []byte(workflowJSON),
		CommitRef: "abc123",
	}}

	result, err := f.syncer.Run(context.Background(), f.tenantID, envID)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Created)
	assert.Zero(t, result.ErrorCount())

	workflow, err := f.canonicals.GetByID(context.Background(), canonicalID)
	require.NoError(t, err)
	assert.Equal(t, "invoice mailer", workflow.DisplayName)

	state, err := f.gitStates.Get(context.Background(), f.tenantID, envID, canonicalID)
	require.NoError(t, err)
	assert.Equal(t, "abc123", state.CommitRef)
	assert.NotEmpty(t, state.ContentHash)

	mapped, err := f.workflowFiles.GetByPath(context.Background(), f.tenantID, envID, canonicalID.String()+".json")
	require.NoError(t, err)
	assert.Equal(t, canonicalID, mapped.CanonicalID)
}

func TestRepositorySync_SecondRunShortCircuits(t *testing.T) {
	f := newRepoFixture(t)
	f.reader.Files = []ports.RepositoryFile{{
		Path:    uuid.New().String() + ".json",
		Content: []byte(workflowJSON),
	}}
	ctx := context.Background()

	_, err := f.syncer.Run(ctx, f.tenantID, envID)
	require.NoError(t, err)
	gitWrites := f.gitStates.Upserts
	fileWrites := f.workflowFiles.Upserts

	result, err := f.syncer.Run(ctx, f.tenantID, envID)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Skipped)
	assert.Zero(t, result.Created)
	assert.Equal(t, gitWrites, f.gitStates.Upserts)
	assert.Equal(t, fileWrites, f.workflowFiles.Upserts)
}

func TestRepositorySync_CosmeticEditStillSkips(t *testing.T) {
	f := newRepoFixture(t)
	path := uuid.New().String() + ".json"
	f.reader.Files = []ports.RepositoryFile{{Path: path, Content: []byte(workflowJSON)}}
	ctx := context.Background()

	_, err := f.syncer.Run(ctx, f.tenantID, envID)
	require.NoError(t, err)

	// Same workflow with node positions moved: normalization makes it
	// hash-identical, so nothing is rewritten.
	moved := []byte(`{"name":"invoice mailer","nodes":[{"name":"send","type":"smtp","position":[900,50],"credentials":{"smtp":{"id":"99","name":"mail"}}}],"connections":{}}`)
	f.reader.Files = []ports.RepositoryFile{{Path: path, Content: moved}}

	result, err := f.syncer.Run(ctx, f.tenantID, envID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
}

func TestRepositorySync_GeneratedIdentityIsStableAcrossRuns(t *testing.T) {
	f := newRepoFixture(t)
	f.reader.Files = []ports.RepositoryFile{{
		Path:    "invoice-mailer.json",
		Content: []byte(workflowJSON),
	}}
	ctx := context.Background()

	result, err := f.syncer.Run(ctx, f.tenantID, envID)
	require.NoError(t, err)
	require.Equal(t, 1, result.Created)

	mapped, err := f.workflowFiles.GetByPath(ctx, f.tenantID, envID, "invoice-mailer.json")
	require.NoError(t, err)
	generated := mapped.CanonicalID

	// The rerun resolves the same id through the path mapping instead of
	// minting a new one.
	result, err = f.syncer.Run(ctx, f.tenantID, envID)
	require.NoError(t, err)
	assert.Zero(t, result.Created)

	mapped, err = f.workflowFiles.GetByPath(ctx, f.tenantID, envID, "invoice-mailer.json")
	require.NoError(t, err)
	assert.Equal(t, generated, mapped.CanonicalID)
}

func TestRepositorySync_SidecarBootstrapsMappings(t *testing.T) {
	f := newRepoFixture(t)
	canonicalID := uuid.New()
	ctx := context.Background()

	sidecar, err := json.Marshal(map[string]any{
		"canonical_workflow_id": canonicalID.String(),
		"environments": map[string]any{
			"production": map[string]any{
				"native_id":    "203",
				"content_hash": "deadbeef",
				"last_seen_at": time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
			},
		},
	})
	require.NoError(t, err)

	f.reader.Files = []ports.RepositoryFile{{
		Path:    canonicalID.String() + ".json",
		Content: []byte(workflowJSON),
		Sidecar: sidecar,
	}}

	result, err := f.syncer.Run(ctx, f.tenantID, envID)
	require.NoError(t, err)
	assert.Zero(t, result.ErrorCount())

	mapping, err := f.mappings.GetByNativeID(ctx, f.tenantID, "production", "203")
	require.NoError(t, err)
	require.NotNil(t, mapping.CanonicalID)
	assert.Equal(t, canonicalID, *mapping.CanonicalID)
	assert.Equal(t, domain.StatusLinked, mapping.Status)
	require.NotNil(t, mapping.LinkedBy)
	assert.Equal(t, "bootstrap", *mapping.LinkedBy)
	assert.Equal(t, "deadbeef", mapping.ContentHash)
}

func TestRepositorySync_SidecarNeverOverwritesExistingMapping(t *testing.T) {
	f := newRepoFixture(t)
	canonicalID := uuid.New()
	ctx := context.Background()

	existing := domain.NewEnvironmentMapping(f.tenantID, "production", "203")
	other := uuid.New()
	existing.Link(other, "admin")
	require.NoError(t, f.mappings.Upsert(ctx, existing))

	sidecar := []byte(`{"canonical_workflow_id":"` + canonicalID.String() + `","environments":{"production":{"native_id":"203","content_hash":"deadbeef"}}}`)
	f.reader.Files = []ports.RepositoryFile{{
		Path:    canonicalID.String() + ".json",
		Content: []byte(workflowJSON),
		Sidecar: sidecar,
	}}

	_, err := f.syncer.Run(ctx, f.tenantID, envID)
	require.NoError(t, err)

	mapping, err := f.mappings.GetByNativeID(ctx, f.tenantID, "production", "203")
	require.NoError(t, err)
	assert.Equal(t, other, *mapping.CanonicalID, "existing mappings win over sidecar bootstrap data")
}

func TestRepositorySync_MalformedSidecarIsPartialFailure(t *testing.T) {
	f := newRepoFixture(t)
	canonicalID := uuid.New()
	f.reader.Files = []ports.RepositoryFile{{
		Path:    canonicalID.String() + ".json",
		Content: []byte(workflowJSON),
		Sidecar: []byte(`{not json`),
	}}

	result, err := f.syncer.Run(context.Background(), f.tenantID, envID)
	require.NoError(t, err)

	// The workflow itself still synced; only the sidecar is reported.
	assert.Equal(t, 1, result.Processed)
	require.Len(t, result.Errors, 1)

	_, err = f.gitStates.Get(context.Background(), f.tenantID, envID, canonicalID)
	assert.NoError(t, err)
}

func TestRepositorySync_SidecarReadFailureReportedOnUnchangedFile(t *testing.T) {
	f := newRepoFixture(t)
	path := uuid.New().String() + ".json"
	f.reader.Files = []ports.RepositoryFile{{Path: path, Content: []byte(workflowJSON)}}
	ctx := context.Background()

	_, err := f.syncer.Run(ctx, f.tenantID, envID)
	require.NoError(t, err)

	// The file itself is unchanged, but this pass could not read its
	// sidecar.
	f.reader.Files = []ports.RepositoryFile{{Path: path, Content: []byte(workflowJSON), SidecarErr: assert.AnError}}
	result, err := f.syncer.Run(ctx, f.tenantID, envID)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Skipped)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, path, result.Errors[0].ItemID)
}

func TestRepositorySync_MalformedDefinitionDoesNotAbortRun(t *testing.T) {
	f := newRepoFixture(t)
	good := uuid.New()
	f.reader.Files = []ports.RepositoryFile{
		{Path: "broken.json", Content: []byte(`{broken`)},
		{Path: good.String() + ".json", Content: []byte(workflowJSON)},
	}

	result, err := f.syncer.Run(context.Background(), f.tenantID, envID)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Processed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "broken.json", result.Errors[0].ItemID)

	_, err = f.gitStates.Get(context.Background(), f.tenantID, envID, good)
	assert.NoError(t, err)
}

func TestRepositorySync_ListFailureIsFatal(t *testing.T) {
	f := newRepoFixture(t)
	f.reader.Err = assert.AnError

	opts := Options{RetryAttempts: 1, RetryBackoff: time.Millisecond}
	f.syncer.opts = opts.withDefaults()

	result, err := f.syncer.Run(context.Background(), f.tenantID, envID)
	assert.Error(t, err)
	assert.Nil(t, result)
}
