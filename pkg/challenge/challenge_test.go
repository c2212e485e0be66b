package challenge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const solvedPage = `<html><body>
<form id="login">
  <input type="hidden" name="cf-turnstile-response" value="">
  <div class="cf-turnstile">
    <input type="hidden" name="cf-turnstile-response" value=" 0.tok-en ">
  </div>
  <input id="bNumber" name="bNumber">
</form>
</body></html>`

const unsolvedPage = `<html><body><form><input type="hidden" name="cf-turnstile-response" value=""></form></body></html>`

func TestStaticSolver(t *testing.T) {
	token, err := StaticSolver{Token: " abc "}.Solve(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	_, err = StaticSolver{}.Solve(context.Background(), nil)
	var chErr *ChallengeError
	require.ErrorAs(t, err, &chErr)
	assert.Equal(t, "static", chErr.Solver)
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestStaticSolver_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := StaticSolver{Token: "abc"}.Solve(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFormSolver(t *testing.T) {
	tests := []struct {
		name    string
		page    *LoginPage
		want    string
		wantErr error
	}{
		{name: "solved widget", page: &LoginPage{HTML: []byte(solvedPage)}, want: "0.tok-en"},
		{name: "unsolved widget", page: &LoginPage{HTML: []byte(unsolvedPage)}, wantErr: ErrNoToken},
		{name: "no widget", page: &LoginPage{HTML: []byte("<p>hi</p>")}, wantErr: ErrNoToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FormSolver{}.Solve(context.Background(), tt.page)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				var chErr *ChallengeError
				require.ErrorAs(t, err, &chErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormSolver_NilPage(t *testing.T) {
	_, err := FormSolver{}.Solve(context.Background(), nil)
	var chErr *ChallengeError
	require.ErrorAs(t, err, &chErr)
}

func TestChain(t *testing.T) {
	failing := SolverFunc(func(context.Context, *LoginPage) (string, error) {
		return "", errors.New("frame not found")
	})
	empty := SolverFunc(func(context.Context, *LoginPage) (string, error) {
		return "", nil
	})
	page := &LoginPage{HTML: []byte(solvedPage)}

	token, err := Chain{failing, empty, FormSolver{}}.Solve(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, "0.tok-en", token)

	_, err = Chain{failing, empty}.Solve(context.Background(), page)
	var chErr *ChallengeError
	require.ErrorAs(t, err, &chErr)
	assert.Equal(t, "chain", chErr.Solver)
	assert.ErrorIs(t, err, ErrNoToken)
	assert.Contains(t, err.Error(), "frame not found")

	_, err = Chain{}.Solve(context.Background(), page)
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestChain_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	first := SolverFunc(func(context.Context, *LoginPage) (string, error) {
		calls++
		cancel()
		return "", context.Canceled
	})
	second := SolverFunc(func(context.Context, *LoginPage) (string, error) {
		calls++
		return "late", nil
	})

	_, err := Chain{first, second}.Solve(ctx, nil)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
