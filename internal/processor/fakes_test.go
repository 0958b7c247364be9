package processor

import (
	"context"
	"io"
	"sort"
	"sync"

	"talent-match/internal/storage/models"
	"talent-match/internal/types"
)

type fakeRoleRepo struct {
	mu     sync.Mutex
	order  []string
	roles  map[string]types.RoleRequirement
	events []models.OutboxMessage
}

func newFakeRoleRepo(roles ...types.RoleRequirement) *fakeRoleRepo {
	r := &fakeRoleRepo{roles: map[string]types.RoleRequirement{}}
	for _, role := range roles {
		r.order = append(r.order, role.ID)
		r.roles[role.ID] = role
	}
	return r
}

func (r *fakeRoleRepo) ListActiveRoles(context.Context) ([]types.RoleRequirement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []types.RoleRequirement{}
	for _, id := range r.order {
		if role := r.roles[id]; role.Active {
			out = append(out, role)
		}
	}
	return out, nil
}

func (r *fakeRoleRepo) GetRole(_ context.Context, id string) (types.RoleRequirement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	role, ok := r.roles[id]
	if !ok {
		return types.RoleRequirement{}, types.NewNotFoundError("role", id)
	}
	return role, nil
}

func (r *fakeRoleRepo) SaveRole(_ context.Context, role types.RoleRequirement, events ...models.OutboxMessage) (types.RoleRequirement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.roles[role.ID]; !ok {
		r.order = append(r.order, role.ID)
	}
	r.roles[role.ID] = role
	r.events = append(r.events, events...)
	return role, nil
}

type fakeCandidateRepo struct {
	profiles map[string]*types.CandidateProfile
	cvs      []models.CandidateCV
}

func (c *fakeCandidateRepo) EnsureCandidate(_ context.Context, candidateID string) error {
	if _, ok := c.profiles[candidateID]; !ok {
		return types.NewNotFoundError("candidate", candidateID)
	}
	return nil
}

func (c *fakeCandidateRepo) GetMatchingProfile(_ context.Context, candidateID, _ string) (*types.CandidateProfile, error) {
	p, ok := c.profiles[candidateID]
	if !ok {
		return nil, types.NewNotFoundError("candidate", candidateID)
	}
	cp := *p
	return &cp, nil
}

func (c *fakeCandidateRepo) SaveCV(_ context.Context, cv *models.CandidateCV) error {
	c.cvs = append(c.cvs, *cv)
	return nil
}

type fakeAppRepo struct {
	apps map[string]types.Application
}

func newFakeAppRepo() *fakeAppRepo {
	return &fakeAppRepo{apps: map[string]types.Application{}}
}

func (a *fakeAppRepo) Create(_ context.Context, app *types.Application) error {
	for _, existing := range a.apps {
		if existing.CandidateID == app.CandidateID && existing.RoleID == app.RoleID {
			return types.ErrInvalidInput
		}
	}
	a.apps[app.ID] = *app
	return nil
}

func (a *fakeAppRepo) Get(_ context.Context, id string) (types.Application, error) {
	app, ok := a.apps[id]
	if !ok {
		return types.Application{}, types.NewNotFoundError("application", id)
	}
	return app, nil
}

func (a *fakeAppRepo) UpdateEligibility(_ context.Context, id string, result types.EligibilityResult, score float64) (types.Application, error) {
	app, ok := a.apps[id]
	if !ok {
		return types.Application{}, types.NewNotFoundError("application", id)
	}
	app.Eligibility = result
	app.EligibilityPassed = result.Eligible
	app.CombinedScore = score
	a.apps[id] = app
	return app, nil
}

func (a *fakeAppRepo) ListEligibleByRole(_ context.Context, roleID string, limit int) ([]types.Application, error) {
	out := []types.Application{}
	for _, app := range a.apps {
		if app.RoleID == roleID && app.EligibilityPassed {
			out = append(out, app)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CombinedScore > out[j].CombinedScore })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeSearcher struct {
	hits []types.SearchHit
	err  error
}

func (f *fakeSearcher) Search(context.Context, string, types.ChunkTag, int) ([]types.SearchHit, error) {
	return f.hits, f.err
}

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	v, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = []float64{float64(len(t) % 7), 1}
	}
	return out, nil
}

type fakeFileStore struct {
	uploaded map[string][]byte
}

func (f *fakeFileStore) UploadResumeFile(_ context.Context, candidateID, fileName string, r io.Reader, _ int64) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	key := "resumes/" + candidateID + "/" + fileName
	if f.uploaded == nil {
		f.uploaded = map[string][]byte{}
	}
	f.uploaded[key] = data
	return key, nil
}

func (f *fakeFileStore) DeleteFile(_ context.Context, objectName string) error {
	delete(f.uploaded, objectName)
	return nil
}

type fakePDF struct {
	text string
	err  error
}

func (f *fakePDF) ExtractText(_ context.Context, r io.Reader, _ string) (string, error) {
	if _, err := io.ReadAll(r); err != nil {
		return "", err
	}
	return f.text, f.err
}
