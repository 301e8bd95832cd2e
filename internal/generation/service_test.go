package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/snapstudio-backend/internal/credits"
	"github.com/angelmondragon/snapstudio-backend/internal/ledger"
	"github.com/angelmondragon/snapstudio-backend/internal/operations"
	"github.com/angelmondragon/snapstudio-backend/internal/pricing"
	"github.com/angelmondragon/snapstudio-backend/pkg/db"
	"github.com/angelmondragon/snapstudio-backend/pkg/db/dbtest"
	"github.com/angelmondragon/snapstudio-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/snapstudio-backend/pkg/errors"
	"github.com/angelmondragon/snapstudio-backend/pkg/outbox"
)

type funcGenerator func(ctx context.Context, task Task) (string, error)

func (f funcGenerator) Generate(ctx context.Context, task Task) (string, error) { return f(ctx, task) }

type stack struct {
	client *db.Client
	ledger *ledger.Service
	gate   *credits.Gate
}

func newStack(t *testing.T, balance int64) *stack {
	t.Helper()
	client := dbtest.Open(t)
	emitter := outbox.NewService(outbox.NewRepository(client.DB()), nil)
	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		Repo:        ledger.NewRepository(client.DB()),
		TxRunner:    client,
		Outbox:      emitter,
		SignupGrant: balance,
	})
	require.NoError(t, err)
	priceSvc, err := pricing.NewService(pricing.ServiceParams{Repo: pricing.NewRepository(client.DB()), TxRunner: client})
	require.NoError(t, err)
	gate, err := credits.NewGate(credits.GateParams{
		Ledger:     ledgerSvc,
		Operations: operations.NewRepository(client.DB()),
		Pricing:    priceSvc,
		Outbox:     emitter,
	})
	require.NoError(t, err)
	_, _, err = ledgerSvc.OpenAccount(context.Background(), ledger.OpenAccountInput{AccountID: "acct_1"})
	require.NoError(t, err)
	return &stack{client: client, ledger: ledgerSvc, gate: gate}
}

func (s *stack) balance(t *testing.T) int64 {
	t.Helper()
	account, err := s.ledger.GetAccount(context.Background(), "acct_1")
	require.NoError(t, err)
	return account.Balance
}

func generateInput(scenes ...string) RunInput {
	two := 2
	return RunInput{
		AccountID: "acct_1",
		Kind:      enums.OperationGenerate,
		Parameters: pricing.Parameters{
			ImagePath:   "uploads/acct_1/shoe.png",
			ProductType: "sneaker",
			Scenes:      scenes,
			Variations:  &two,
		},
	}
}

func TestRunCompletesAndKeepsArtifactOrder(t *testing.T) {
	s := newStack(t, 30)
	gen := funcGenerator(func(ctx context.Context, task Task) (string, error) {
		time.Sleep(time.Duration(10-task.Index) * time.Millisecond)
		return fmt.Sprintf("artifacts/%s/%d.png", task.OperationID, task.Index), nil
	})
	svc, err := NewService(ServiceParams{Gate: s.gate, Generator: gen, MaxParallel: 3})
	require.NoError(t, err)

	res, err := svc.Run(context.Background(), generateInput("beach", "studio"))
	require.NoError(t, err)
	assert.EqualValues(t, 12, res.Cost)
	assert.EqualValues(t, 18, res.NewBalance)
	require.Len(t, res.Artifacts, 4)
	for i, path := range res.Artifacts {
		assert.Equal(t, fmt.Sprintf("artifacts/%s/%d.png", res.OperationID, i), path)
	}
	assert.EqualValues(t, 18, s.balance(t))

	op, err := operations.NewRepository(s.client.DB()).FindByID(context.Background(), res.OperationID)
	require.NoError(t, err)
	assert.Equal(t, enums.OperationStatusCompleted, op.Status)
	assert.Len(t, op.Artifacts, 4)
}

func TestRunRespectsParallelLimit(t *testing.T) {
	s := newStack(t, 30)
	var inFlight, peak int32
	gen := funcGenerator(func(ctx context.Context, task Task) (string, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return "a.png", nil
	})
	svc, err := NewService(ServiceParams{Gate: s.gate, Generator: gen, MaxParallel: 2})
	require.NoError(t, err)

	_, err = svc.Run(context.Background(), generateInput("beach", "studio", "forest"))
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestRunReleasesCreditsWhenOneTaskFails(t *testing.T) {
	s := newStack(t, 30)
	gen := funcGenerator(func(ctx context.Context, task Task) (string, error) {
		if task.Index == 2 {
			return "", errors.New("model overloaded")
		}
		return "a.png", nil
	})
	svc, err := NewService(ServiceParams{Gate: s.gate, Generator: gen})
	require.NoError(t, err)

	_, err = svc.Run(context.Background(), generateInput("beach", "studio"))
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeGenerationFailed, typed.Code())
	details, ok := typed.Details().(FailureDetails)
	require.True(t, ok)
	assert.EqualValues(t, 12, details.Refunded)
	assert.EqualValues(t, 30, s.balance(t))

	op, err := operations.NewRepository(s.client.DB()).FindByID(context.Background(), details.OperationID)
	require.NoError(t, err)
	assert.Equal(t, enums.OperationStatusFailed, op.Status)
	require.NotNil(t, op.FailureReason)
	assert.Contains(t, *op.FailureReason, "model overloaded")
}

func TestRunReleasesOnTimeout(t *testing.T) {
	s := newStack(t, 30)
	gen := funcGenerator(func(ctx context.Context, task Task) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	svc, err := NewService(ServiceParams{Gate: s.gate, Generator: gen, Timeout: 20 * time.Millisecond})
	require.NoError(t, err)

	_, err = svc.Run(context.Background(), generateInput("beach"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGenerationFailed))
	assert.EqualValues(t, 30, s.balance(t))
}

func TestRunReleasesWhenCallerCancels(t *testing.T) {
	s := newStack(t, 30)
	ctx, cancel := context.WithCancel(context.Background())
	var once sync.Once
	gen := funcGenerator(func(gctx context.Context, task Task) (string, error) {
		once.Do(cancel)
		<-gctx.Done()
		return "", gctx.Err()
	})
	svc, err := NewService(ServiceParams{Gate: s.gate, Generator: gen})
	require.NoError(t, err)

	_, err = svc.Run(ctx, generateInput("beach"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGenerationFailed))
	assert.EqualValues(t, 30, s.balance(t))
}

func TestRunInsufficientCreditsSkipsGeneration(t *testing.T) {
	s := newStack(t, 5)
	var calls int32
	gen := funcGenerator(func(ctx context.Context, task Task) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "a.png", nil
	})
	svc, err := NewService(ServiceParams{Gate: s.gate, Generator: gen})
	require.NoError(t, err)

	_, err = svc.Run(context.Background(), generateInput("beach", "studio"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientCredits))
	assert.Zero(t, atomic.LoadInt32(&calls))
	assert.EqualValues(t, 5, s.balance(t))
}

func TestRunConservesCreditsAcrossMixedOutcomes(t *testing.T) {
	s := newStack(t, 30)
	var n int32
	gen := funcGenerator(func(ctx context.Context, task Task) (string, error) {
		if atomic.AddInt32(&n, 1)%5 == 0 {
			return "", errors.New("flaky")
		}
		return "a.png", nil
	})
	svc, err := NewService(ServiceParams{Gate: s.gate, Generator: gen, MaxParallel: 1})
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		_, _ = svc.Run(context.Background(), generateInput("beach"))
	}

	rec, err := s.ledger.Reconcile(context.Background(), "acct_1")
	require.NoError(t, err)
	assert.True(t, rec.Consistent, "problems: %v", rec.Problems)
	assert.Equal(t, rec.Granted-rec.Deducted+rec.Refunded, rec.StoredBalance)
	assert.GreaterOrEqual(t, rec.StoredBalance, int64(0))

	var pending int64
	require.NoError(t, s.client.DB().Table("operations").Where("status = ?", enums.OperationStatusPending).Count(&pending).Error)
	assert.Zero(t, pending)
}

func TestPlanTasks(t *testing.T) {
	opID := uuid.New()
	three := 3
	tasks := PlanTasks(opID, "acct_1", enums.OperationGenerate,
		pricing.Parameters{Scenes: []string{"beach", " ", "studio"}, Variations: &three},
		pricing.Quote{Variations: 3})
	require.Len(t, tasks, 6)
	assert.Equal(t, "beach", tasks[0].Scene)
	assert.Equal(t, 3, tasks[2].Variation)
	assert.Equal(t, "studio", tasks[3].Scene)
	assert.Equal(t, 5, tasks[5].Index)

	custom := PlanTasks(opID, "acct_1", enums.OperationGenerate,
		pricing.Parameters{CustomPrompt: "on a marble plinth", Scenes: []string{"beach"}},
		pricing.Quote{Variations: 2})
	require.Len(t, custom, 2)
	assert.Empty(t, custom[0].Scene)

	retouch := PlanTasks(opID, "acct_1", enums.OperationRetouch, pricing.Parameters{}, pricing.Quote{Variations: 1})
	assert.Len(t, retouch, 1)
}

func TestRunReleasesWithMultiByteGatewayError(t *testing.T) {
	s := newStack(t, 30)
	body := "x" + strings.Repeat("画像", 400) + "\xff"
	gen := funcGenerator(func(ctx context.Context, task Task) (string, error) {
		return "", fmt.Errorf("generation task %d failed: 500 Internal Server Error: %s", task.Index, body)
	})
	svc, err := NewService(ServiceParams{Gate: s.gate, Generator: gen, MaxParallel: 1})
	require.NoError(t, err)

	_, err = svc.Run(context.Background(), generateInput("beach"))
	details, ok := pkgerrors.As(err).Details().(FailureDetails)
	require.True(t, ok)
	assert.EqualValues(t, 6, details.Refunded)
	assert.EqualValues(t, 30, s.balance(t))

	op, err := operations.NewRepository(s.client.DB()).FindByID(context.Background(), details.OperationID)
	require.NoError(t, err)
	require.NotNil(t, op.FailureReason)
	assert.True(t, utf8.ValidString(*op.FailureReason))
	assert.LessOrEqual(t, len(*op.FailureReason), 500)
}

func TestTruncateKeepsCharactersWhole(t *testing.T) {
	in := "failed: x" + strings.Repeat("画像", 200)
	got := truncate(in, 500)
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), 500)
	assert.True(t, strings.HasPrefix(in, got))
	assert.Equal(t, "short", truncate("short", 500))
	assert.True(t, utf8.ValidString(truncate("bad\xffbytes", 500)))
}
