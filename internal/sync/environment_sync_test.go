package sync

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canonsync/internal/core/ports"
	"canonsync/internal/domain"
	"canonsync/internal/identity"
	"canonsync/internal/linker"
	"canonsync/internal/testutil"
)

const envID = "production"

// envFixture wires an EnvironmentSyncer over in-memory stores, with the
// repository side available for end-to-end scenarios.
type envFixture struct {
	tenantID      uuid.UUID
	canonicals    *testutil.MemCanonicalRepo
	gitStates     *testutil.MemGitStateRepo
	mappings      *testutil.MemMappingRepo
	workflowFiles *testutil.MemWorkflowFileRepo
	fingerprinter *identity.Fingerprinter
	runtime       *testutil.StaticRuntimeReader
	repoReader    *testutil.StaticRepositoryReader
	syncer        *EnvironmentSyncer
	repoSyncer    *RepositorySyncer
}

func newEnvFixture(t *testing.T) *envFixture {
	t.Helper()
	f := &envFixture{
		tenantID:      uuid.New(),
		canonicals:    testutil.NewMemCanonicalRepo(),
		gitStates:     testutil.NewMemGitStateRepo(),
		mappings:      testutil.NewMemMappingRepo(),
		workflowFiles: testutil.NewMemWorkflowFileRepo(),
		fingerprinter: identity.NewFingerprinter(testutil.NewMemDigestRepo()),
		runtime:       &testutil.StaticRuntimeReader{},
		repoReader:    &testutil.StaticRepositoryReader{},
	}
	autoLinker := linker.NewAutoLinker(f.gitStates, f.mappings)
	classes := map[string]domain.EnvironmentClass{envID: domain.EnvironmentFull}
	f.syncer = NewEnvironmentSyncer(f.runtime, f.mappings, autoLinker, f.fingerprinter, classes, Options{})
	f.repoSyncer = NewRepositorySyncer(f.repoReader, f.canonicals, f.gitStates, f.workflowFiles, f.mappings, f.fingerprinter, Options{})
	return f
}

func (f *envFixture) mustMapping(t *testing.T, nativeID string) *domain.EnvironmentMapping {
	t.Helper()
	mapping, err := f.mappings.GetByNativeID(context.Background(), f.tenantID, envID, nativeID)
	require.NoError(t, err)
	return mapping
}

const workflowJSON = `{"name":"invoice mailer","nodes":[{"name":"send","type":"smtp","position":[100,200],"credentials":{"smtp":{"id":"7","name":"mail"}}}],"connections":{}}`

func runtimeWorkflow(nativeID string, updatedAt time.Time) ports.RuntimeWorkflow {
	return ports.RuntimeWorkflow{
		NativeID:   nativeID,
		Name:       "invoice mailer",
		Definition: []byte(workflowJSON),
		UpdatedAt:  updatedAt,
	}
}

func TestEnvironmentSync_NewWorkflowWithoutGitMatchIsUntracked(t *testing.T) {
	f := newEnvFixture(t)
	f.runtime.Workflows = []ports.RuntimeWorkflow{runtimeWorkflow("203", time.Now())}

	result, err := f.syncer.Run(context.Background(), f.tenantID, envID)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Untracked)
	assert.Equal(t, 0, result.Linked)

	mapping := f.mustMapping(t, "203")
	assert.Equal(t, domain.StatusUntracked, mapping.Status)
	assert.Nil(t, mapping.CanonicalID)
}

func TestEnvironmentSync_EndToEndLinkMissingReappear(t *testing.T) {
	f := newEnvFixture(t)
	canonicalID := uuid.MustParse("aaaa1111-0000-4000-8000-000000000001")
	ctx := context.Background()

	// Repository sync first: the committed file establishes identity
	// and the git hash the auto-linker matches against.
	f.repoReader.Files = []ports.RepositoryFile{{
		Path:      canonicalID.String() + ".json",
		Content:   []byte(workflowJSON),
		CommitRef: "abc123",
	}}
	repoResult, err := f.repoSyncer.Run(ctx, f.tenantID, envID)
	require.NoError(t, err)
	require.Equal(t, 1, repoResult.Processed)
	require.Equal(t, 1, repoResult.Created)

	// The runtime reports the same content under its own id: auto-link.
	f.runtime.Workflows = []ports.RuntimeWorkflow{runtimeWorkflow("203", time.Now())}
	result, err := f.syncer.Run(ctx, f.tenantID, envID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Linked)

	mapping := f.mustMapping(t, "203")
	require.NotNil(t, mapping.CanonicalID)
	assert.Equal(t, canonicalID, *mapping.CanonicalID)
	assert.Equal(t, domain.StatusLinked, mapping.Status)
	require.NotNil(t, mapping.LinkedBy)
	assert.Equal(t, "auto-linker", *mapping.LinkedBy)

	// The workflow disappears from the runtime: MISSING, ids preserved.
	f.runtime.Workflows = nil
	result, err = f.syncer.Run(ctx, f.tenantID, envID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Missing)

	mapping = f.mustMapping(t, "203")
	assert.Equal(t, domain.StatusMissing, mapping.Status)
	require.NotNil(t, mapping.CanonicalID)
	assert.Equal(t, canonicalID, *mapping.CanonicalID)

	// It reappears with identical content: back to LINKED.
	f.runtime.Workflows = []ports.RuntimeWorkflow{runtimeWorkflow("203", time.Now())}
	result, err = f.syncer.Run(ctx, f.tenantID, envID)
	require.NoError(t, err)

	mapping = f.mustMapping(t, "203")
	assert.Equal(t, domain.StatusLinked, mapping.Status)
	assert.Equal(t, canonicalID, *mapping.CanonicalID)
}

func TestEnvironmentSync_ReappearedUntrackedStaysUntracked(t *testing.T) {
	f := newEnvFixture(t)
	ctx := context.Background()

	missing := domain.NewEnvironmentMapping(f.tenantID, envID, "203")
	missing.Status = domain.StatusMissing
	require.NoError(t, f.mappings.Upsert(ctx, missing))

	f.runtime.Workflows = []ports.RuntimeWorkflow{runtimeWorkflow("203", time.Now())}
	_, err := f.syncer.Run(ctx, f.tenantID, envID)
	require.NoError(t, err)

	mapping := f.mustMapping(t, "203")
	assert.Equal(t, domain.StatusUntracked, mapping.Status, "no promotion to LINKED without a canonical id")
}

func TestEnvironmentSync_SecondRunSkipsEverything(t *testing.T) {
	f := newEnvFixture(t)
	ctx := context.Background()
	f.runtime.Workflows = []ports.RuntimeWorkflow{
		runtimeWorkflow("203", time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)),
		runtimeWorkflow("204", time.Date(2026, 8, 2, 11, 30, 0, 0, time.UTC)),
	}

	_, err := f.syncer.Run(ctx, f.tenantID, envID)
	require.NoError(t, err)
	writesAfterFirst := f.mappings.Upserts

	result, err := f.syncer.Run(ctx, f.tenantID, envID)
	require.NoError(t, err)

	assert.Equal(t, result.Processed, result.Skipped, "idempotent second pass must skip every item")
	assert.Zero(t, result.ErrorCount())
	assert.Equal(t, writesAfterFirst, f.mappings.Upserts, "idempotent second pass must not write")
}

func TestEnvironmentSync_TimestampComparisonNormalizesRepresentation(t *testing.T) {
	f := newEnvFixture(t)
	ctx := context.Background()

	utc := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	f.runtime.Workflows = []ports.RuntimeWorkflow{runtimeWorkflow("203", utc)}
	_, err := f.syncer.Run(ctx, f.tenantID, envID)
	require.NoError(t, err)
	writes := f.mappings.Upserts

	// Same instant, different zone and sub-second precision.
	offset := time.FixedZone("CEST", 2*60*60)
	f.runtime.Workflows = []ports.RuntimeWorkflow{runtimeWorkflow("203", utc.In(offset).Add(250*time.Millisecond))}
	result, err := f.syncer.Run(ctx, f.tenantID, envID)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, writes, f.mappings.Upserts)
}

func TestEnvironmentSync_ChangedTimestampRecomputesHash(t *testing.T) {
	f := newEnvFixture(t)
	ctx := context.Background()

	f.runtime.Workflows = []ports.RuntimeWorkflow{runtimeWorkflow("203", time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC))}
	_, err := f.syncer.Run(ctx, f.tenantID, envID)
	require.NoError(t, err)
	before := f.mustMapping(t, "203")

	changed := runtimeWorkflow("203", time.Date(2026, 8, 5, 9, 0, 0, 0, time.UTC))
	changed.Definition = []byte(`{"name":"invoice mailer","nodes":[{"name":"send","type":"httpRequest"}],"connections":{}}`)
	f.runtime.Workflows = []ports.RuntimeWorkflow{changed}

	result, err := f.syncer.Run(ctx, f.tenantID, envID)
	require.NoError(t, err)
	assert.Zero(t, result.Skipped)

	after := f.mustMapping(t, "203")
	assert.NotEqual(t, before.ContentHash, after.ContentHash)
}

func TestEnvironmentSync_IgnoredAndDeletedOverridesPreserved(t *testing.T) {
	f := newEnvFixture(t)
	ctx := context.Background()

	for nativeID, status := range map[string]domain.MappingStatus{
		"301": domain.StatusIgnored,
		"302": domain.StatusDeleted,
	} {
		mapping := domain.NewEnvironmentMapping(f.tenantID, envID, nativeID)
		mapping.Status = status
		require.NoError(t, f.mappings.Upsert(ctx, mapping))
	}

	f.runtime.Workflows = []ports.RuntimeWorkflow{
		runtimeWorkflow("301", time.Now()),
		runtimeWorkflow("302", time.Now()),
	}
	result, err := f.syncer.Run(ctx, f.tenantID, envID)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Skipped)
	assert.Equal(t, domain.StatusIgnored, f.mustMapping(t, "301").Status)
	assert.Equal(t, domain.StatusDeleted, f.mustMapping(t, "302").Status)
}

func TestEnvironmentSync_SweepLeavesIgnoredAlone(t *testing.T) {
	f := newEnvFixture(t)
	ctx := context.Background()

	ignored := domain.NewEnvironmentMapping(f.tenantID, envID, "301")
	ignored.Status = domain.StatusIgnored
	require.NoError(t, f.mappings.Upsert(ctx, ignored))

	f.runtime.Workflows = nil
	result, err := f.syncer.Run(ctx, f.tenantID, envID)
	require.NoError(t, err)

	assert.Zero(t, result.Missing)
	assert.Equal(t, domain.StatusIgnored, f.mustMapping(t, "301").Status)
}

func TestEnvironmentSync_BadDefinitionRecordedPerItem(t *testing.T) {
	f := newEnvFixture(t)
	ctx := context.Background()

	broken := ports.RuntimeWorkflow{NativeID: "999", Definition: []byte(`{broken`), UpdatedAt: time.Now()}
	f.runtime.Workflows = []ports.RuntimeWorkflow{broken, runtimeWorkflow("203", time.Now())}

	result, err := f.syncer.Run(ctx, f.tenantID, envID)
	require.NoError(t, err, "one bad item must not abort the batch")

	assert.Equal(t, 2, result.Processed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "999", result.Errors[0].ItemID)

	// The healthy item still synced.
	assert.Equal(t, domain.StatusUntracked, f.mustMapping(t, "203").Status)
}

func TestEnvironmentSync_FailedItemIsStillSeenBySweep(t *testing.T) {
	f := newEnvFixture(t)
	ctx := context.Background()

	// A previously tracked workflow whose definition now fails to parse.
	f.runtime.Workflows = []ports.RuntimeWorkflow{runtimeWorkflow("203", time.Now())}
	_, err := f.syncer.Run(ctx, f.tenantID, envID)
	require.NoError(t, err)

	f.runtime.Workflows = []ports.RuntimeWorkflow{{NativeID: "203", Definition: []byte(`{broken`), UpdatedAt: time.Now().Add(time.Hour)}}
	result, err := f.syncer.Run(ctx, f.tenantID, envID)
	require.NoError(t, err)

	assert.Zero(t, result.Missing, "a live workflow must not be swept to MISSING because its item errored")
	assert.NotEqual(t, domain.StatusMissing, f.mustMapping(t, "203").Status)
}

func TestEnvironmentSync_ObservationalClassDoesNotCachePayload(t *testing.T) {
	f := newEnvFixture(t)
	ctx := context.Background()
	f.syncer.classes = map[string]domain.EnvironmentClass{envID: domain.EnvironmentObservational}

	f.runtime.Workflows = []ports.RuntimeWorkflow{runtimeWorkflow("203", time.Now())}
	_, err := f.syncer.Run(ctx, f.tenantID, envID)
	require.NoError(t, err)

	mapping := f.mustMapping(t, "203")
	assert.Empty(t, mapping.CachedPayload)
	assert.NotEmpty(t, mapping.ContentHash)
}

// collidingSyncDigest maps every unsalted payload to one value so tests
// can exercise collision handling; salted payloads keep the suffix.
func collidingSyncDigest(data []byte) string {
	if i := bytes.IndexByte(data, 0x00); i >= 0 {
		return "salted:" + string(data[i+1:])
	}
	return "collided"
}

func TestEnvironmentSync_UnresolvedCollisionBlocksAutoLink(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()
	gitStates := testutil.NewMemGitStateRepo()
	mappings := testutil.NewMemMappingRepo()
	fingerprinter := identity.NewFingerprinterWithDigest(testutil.NewMemDigestRepo(), collidingSyncDigest)
	autoLinker := linker.NewAutoLinker(gitStates, mappings)
	classes := map[string]domain.EnvironmentClass{envID: domain.EnvironmentFull}
	runtime := &testutil.StaticRuntimeReader{}
	syncer := NewEnvironmentSyncer(runtime, mappings, autoLinker, fingerprinter, classes, Options{})

	// A committed workflow occupies the hash: registry holds its payload
	// and git state makes it an auto-link candidate.
	canonicalID := uuid.New()
	committed, err := identity.Normalize([]byte(workflowJSON))
	require.NoError(t, err)
	hash, warn, err := fingerprinter.Fingerprint(ctx, committed, &canonicalID)
	require.NoError(t, err)
	require.Nil(t, warn)
	state := domain.NewGitState(tenantID, envID, canonicalID)
	state.Path = canonicalID.String() + ".json"
	state.ContentHash = hash
	require.NoError(t, gitStates.Upsert(ctx, state))

	// The runtime reports different content that digests to the same
	// hash. Without a canonical id the collision cannot be salted away,
	// so linking on the shared hash would merge two distinct workflows.
	runtime.Workflows = []ports.RuntimeWorkflow{{
		NativeID:   "203",
		Definition: []byte(`{"name":"other","nodes":[{"name":"fetch","type":"httpRequest"}],"connections":{}}`),
		UpdatedAt:  time.Now(),
	}}
	result, err := syncer.Run(ctx, tenantID, envID)
	require.NoError(t, err)

	require.Len(t, result.CollisionWarnings, 1)
	assert.False(t, result.CollisionWarnings[0].Resolved)
	assert.Equal(t, 1, result.Untracked)
	assert.Zero(t, result.Linked)

	mapping, err := mappings.GetByNativeID(ctx, tenantID, envID, "203")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUntracked, mapping.Status)
	assert.Nil(t, mapping.CanonicalID, "a hash shared by two different payloads must not auto-link")
}

func TestEnvironmentSync_FullClassCachesPayload(t *testing.T) {
	f := newEnvFixture(t)
	ctx := context.Background()

	f.runtime.Workflows = []ports.RuntimeWorkflow{runtimeWorkflow("203", time.Now())}
	_, err := f.syncer.Run(ctx, f.tenantID, envID)
	require.NoError(t, err)

	assert.JSONEq(t, workflowJSON, string(f.mustMapping(t, "203").CachedPayload))
}
