package pinledger

import (
	"context"
	"errors"
	"io"

	"github.com/bwmarrin/snowflake"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/semaphore"
)

type Middleware func(Service) Service

// Chain wraps svc so that the first middleware is the outermost.
func Chain(svc Service, mws ...Middleware) Service {
	for i := len(mws) - 1; i >= 0; i-- {
		svc = mws[i](svc)
	}
	return svc
}

//
// Input validation middleware
//

// validationMiddleware enforces the input boundary: positive whole amounts,
// present credentials and draft IDs. Business rules stay in the service.
type validationMiddleware struct {
	next Service
}

var (
	_ Service = (*validationMiddleware)(nil)
)

func NewValidationMiddleware() Middleware {
	return func(svc Service) Service {
		return &validationMiddleware{
			next: svc,
		}
	}
}

func checkCredentials(creds Credentials) error {
	if creds.AcctNo == "" || creds.PIN == "" {
		return ErrAuth
	}
	return nil
}

func checkCharge(req ChargeReq) error {
	if err := checkCredentials(req.Credentials); err != nil {
		return err
	}
	if req.Amount < 1 {
		return ErrBadRequest{Fields: map[string]string{"amount": "must be at least 1"}}
	}
	return nil
}

func checkDraftID(id snowflake.ID) error {
	if id <= 0 {
		return ErrBadRequest{Fields: map[string]string{"draft_id": "missing or invalid"}}
	}
	return nil
}

func (v *validationMiddleware) CreateAccount(ctx context.Context, req CreateAccountReq) (*Account, error) {
	return v.next.CreateAccount(ctx, req)
}

func (v *validationMiddleware) Deposit(ctx context.Context, req ChargeReq) (*ChargeResult, error) {
	if err := checkCharge(req); err != nil {
		return nil, err
	}
	return v.next.Deposit(ctx, req)
}

func (v *validationMiddleware) Withdraw(ctx context.Context, req ChargeReq) (*ChargeResult, error) {
	if err := checkCharge(req); err != nil {
		return nil, err
	}
	return v.next.Withdraw(ctx, req)
}

func (v *validationMiddleware) ViewDetails(ctx context.Context, creds Credentials) (*Account, error) {
	if err := checkCredentials(creds); err != nil {
		return nil, err
	}
	return v.next.ViewDetails(ctx, creds)
}

func (v *validationMiddleware) BeginUpdate(ctx context.Context, creds Credentials) (*Draft, error) {
	if err := checkCredentials(creds); err != nil {
		return nil, err
	}
	return v.next.BeginUpdate(ctx, creds)
}

func (v *validationMiddleware) ConfirmUpdate(ctx context.Context, req ConfirmUpdateReq) (*Account, error) {
	if err := checkDraftID(req.DraftID); err != nil {
		return nil, err
	}
	if err := checkCredentials(req.Credentials); err != nil {
		return nil, err
	}
	return v.next.ConfirmUpdate(ctx, req)
}

func (v *validationMiddleware) AbandonUpdate(ctx context.Context, draftID snowflake.ID) error {
	if err := checkDraftID(draftID); err != nil {
		return err
	}
	return v.next.AbandonUpdate(ctx, draftID)
}

func (v *validationMiddleware) DeleteAccount(ctx context.Context, creds Credentials) error {
	if err := checkCredentials(creds); err != nil {
		return err
	}
	return v.next.DeleteAccount(ctx, creds)
}

func (v *validationMiddleware) Statement(ctx context.Context, w io.Writer, creds Credentials) error {
	if err := checkCredentials(creds); err != nil {
		return err
	}
	return v.next.Statement(ctx, w, creds)
}

//
// Rate limiting middlewares
//

// limitMiddleware limits the number of in-flight requests to the service by using
// a weighted semaphore, i.e., x/sync/semaphore.Semaphore with an acquisition timeout.
// Requests that cannot get a token in time are shed with ErrServiceUnavailable.
type limitMiddleware struct {
	next   Service
	limits *ServiceLimits
}

var (
	_ Service = (*limitMiddleware)(nil)
)

type ServiceLimits struct {
	CreateAccount *semaphore.Weighted
	Deposit       *semaphore.Weighted
	Withdraw      *semaphore.Weighted
	ViewDetails   *semaphore.Weighted
	Update        *semaphore.Weighted
	DeleteAccount *semaphore.Weighted
	Statement     *semaphore.Weighted
	cfg           LimitsConfig
}

func NewServiceLimits(cfg LimitsConfig) *ServiceLimits {
	if cfg.InFlight < 1 {
		cfg.InFlight = 1
	}
	return &ServiceLimits{
		CreateAccount: semaphore.NewWeighted(cfg.InFlight),
		Deposit:       semaphore.NewWeighted(cfg.InFlight),
		Withdraw:      semaphore.NewWeighted(cfg.InFlight),
		ViewDetails:   semaphore.NewWeighted(cfg.InFlight),
		Update:        semaphore.NewWeighted(cfg.InFlight),
		DeleteAccount: semaphore.NewWeighted(cfg.InFlight),
		Statement:     semaphore.NewWeighted(cfg.InFlight),
		cfg:           cfg,
	}
}

func NewLimitMiddleware(limits *ServiceLimits) Middleware {
	return func(next Service) Service {
		return &limitMiddleware{
			next:   next,
			limits: limits,
		}
	}
}

func (l *limitMiddleware) acquire(ctx context.Context, sem *semaphore.Weighted) (func(), error) {
	actx := ctx
	if l.limits.cfg.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, l.limits.cfg.AcquireTimeout)
		defer cancel()
	}
	if err := sem.Acquire(actx, 1); err != nil {
		return nil, ErrServiceUnavailable
	}
	return func() { sem.Release(1) }, nil
}

func (l *limitMiddleware) CreateAccount(ctx context.Context, req CreateAccountReq) (*Account, error) {
	release, err := l.acquire(ctx, l.limits.CreateAccount)
	if err != nil {
		return nil, err
	}
	defer release()
	return l.next.CreateAccount(ctx, req)
}

func (l *limitMiddleware) Deposit(ctx context.Context, req ChargeReq) (*ChargeResult, error) {
	release, err := l.acquire(ctx, l.limits.Deposit)
	if err != nil {
		return nil, err
	}
	defer release()
	return l.next.Deposit(ctx, req)
}

func (l *limitMiddleware) Withdraw(ctx context.Context, req ChargeReq) (*ChargeResult, error) {
	release, err := l.acquire(ctx, l.limits.Withdraw)
	if err != nil {
		return nil, err
	}
	defer release()
	return l.next.Withdraw(ctx, req)
}

func (l *limitMiddleware) ViewDetails(ctx context.Context, creds Credentials) (*Account, error) {
	release, err := l.acquire(ctx, l.limits.ViewDetails)
	if err != nil {
		return nil, err
	}
	defer release()
	return l.next.ViewDetails(ctx, creds)
}

func (l *limitMiddleware) BeginUpdate(ctx context.Context, creds Credentials) (*Draft, error) {
	release, err := l.acquire(ctx, l.limits.Update)
	if err != nil {
		return nil, err
	}
	defer release()
	return l.next.BeginUpdate(ctx, creds)
}

func (l *limitMiddleware) ConfirmUpdate(ctx context.Context, req ConfirmUpdateReq) (*Account, error) {
	release, err := l.acquire(ctx, l.limits.Update)
	if err != nil {
		return nil, err
	}
	defer release()
	return l.next.ConfirmUpdate(ctx, req)
}

func (l *limitMiddleware) AbandonUpdate(ctx context.Context, draftID snowflake.ID) error {
	return l.next.AbandonUpdate(ctx, draftID)
}

func (l *limitMiddleware) DeleteAccount(ctx context.Context, creds Credentials) error {
	release, err := l.acquire(ctx, l.limits.DeleteAccount)
	if err != nil {
		return err
	}
	defer release()
	return l.next.DeleteAccount(ctx, creds)
}

func (l *limitMiddleware) Statement(ctx context.Context, w io.Writer, creds Credentials) error {
	release, err := l.acquire(ctx, l.limits.Statement)
	if err != nil {
		return err
	}
	defer release()
	return l.next.Statement(ctx, w, creds)
}

type ServiceBreaker struct {
	CreateAccount *gobreaker.CircuitBreaker[*Account]
	Deposit       *gobreaker.CircuitBreaker[*ChargeResult]
	Withdraw      *gobreaker.CircuitBreaker[*ChargeResult]
	ViewDetails   *gobreaker.CircuitBreaker[*Account]
	BeginUpdate   *gobreaker.CircuitBreaker[*Draft]
	ConfirmUpdate *gobreaker.CircuitBreaker[*Account]
	DeleteAccount *gobreaker.CircuitBreaker[struct{}]
	Statement     *gobreaker.CircuitBreaker[struct{}]
}

// NewServiceBreaker builds one breaker per operation. Only storage failures
// count against a breaker; rejected credentials or amounts are successes as
// far as the backend is concerned.
func NewServiceBreaker(cfg BreakerConfig, log *zerolog.Logger) *ServiceBreaker {
	log = nopIfNil(log)
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	st := func(name string) gobreaker.Settings {
		return gobreaker.Settings{
			Name:        name,
			MaxRequests: cfg.MaxRequests,
			Interval:    cfg.Interval,
			Timeout:     cfg.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().
					Str("breaker", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("circuit breaker state changed")
			},
			IsSuccessful: func(err error) bool {
				// a caller giving up while queued on the store lock says
				// nothing about the backend
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return true
				}
				return !errors.As(err, &ErrStorage{})
			},
		}
	}
	return &ServiceBreaker{
		CreateAccount: gobreaker.NewCircuitBreaker[*Account](st("create_account")),
		Deposit:       gobreaker.NewCircuitBreaker[*ChargeResult](st("deposit")),
		Withdraw:      gobreaker.NewCircuitBreaker[*ChargeResult](st("withdraw")),
		ViewDetails:   gobreaker.NewCircuitBreaker[*Account](st("view_details")),
		BeginUpdate:   gobreaker.NewCircuitBreaker[*Draft](st("begin_update")),
		ConfirmUpdate: gobreaker.NewCircuitBreaker[*Account](st("confirm_update")),
		DeleteAccount: gobreaker.NewCircuitBreaker[struct{}](st("delete_account")),
		Statement:     gobreaker.NewCircuitBreaker[struct{}](st("statement")),
	}
}

// circuitBreakMiddleware is a middleware that implements the circuit breaker pattern.
// It works in conjunction with limitMiddleware: once the record store keeps failing,
// requests fail fast with ErrServiceUnavailable instead of queueing on the store lock.
type circuitBreakMiddleware struct {
	next  Service
	brkrs *ServiceBreaker
}

var (
	_ Service = (*circuitBreakMiddleware)(nil)
)

func NewCircuitBreakMiddleware(brkrs *ServiceBreaker) Middleware {
	return func(next Service) Service {
		return &circuitBreakMiddleware{
			next:  next,
			brkrs: brkrs,
		}
	}
}

func breakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrServiceUnavailable
	}
	return err
}

func (c *circuitBreakMiddleware) CreateAccount(ctx context.Context, req CreateAccountReq) (*Account, error) {
	acct, err := c.brkrs.CreateAccount.Execute(func() (*Account, error) {
		return c.next.CreateAccount(ctx, req)
	})
	return acct, breakerErr(err)
}

func (c *circuitBreakMiddleware) Deposit(ctx context.Context, req ChargeReq) (*ChargeResult, error) {
	res, err := c.brkrs.Deposit.Execute(func() (*ChargeResult, error) {
		return c.next.Deposit(ctx, req)
	})
	return res, breakerErr(err)
}

func (c *circuitBreakMiddleware) Withdraw(ctx context.Context, req ChargeReq) (*ChargeResult, error) {
	res, err := c.brkrs.Withdraw.Execute(func() (*ChargeResult, error) {
		return c.next.Withdraw(ctx, req)
	})
	return res, breakerErr(err)
}

func (c *circuitBreakMiddleware) ViewDetails(ctx context.Context, creds Credentials) (*Account, error) {
	acct, err := c.brkrs.ViewDetails.Execute(func() (*Account, error) {
		return c.next.ViewDetails(ctx, creds)
	})
	return acct, breakerErr(err)
}

func (c *circuitBreakMiddleware) BeginUpdate(ctx context.Context, creds Credentials) (*Draft, error) {
	d, err := c.brkrs.BeginUpdate.Execute(func() (*Draft, error) {
		return c.next.BeginUpdate(ctx, creds)
	})
	return d, breakerErr(err)
}

func (c *circuitBreakMiddleware) ConfirmUpdate(ctx context.Context, req ConfirmUpdateReq) (*Account, error) {
	acct, err := c.brkrs.ConfirmUpdate.Execute(func() (*Account, error) {
		return c.next.ConfirmUpdate(ctx, req)
	})
	return acct, breakerErr(err)
}

func (c *circuitBreakMiddleware) AbandonUpdate(ctx context.Context, draftID snowflake.ID) error {
	return c.next.AbandonUpdate(ctx, draftID)
}

func (c *circuitBreakMiddleware) DeleteAccount(ctx context.Context, creds Credentials) error {
	_, err := c.brkrs.DeleteAccount.Execute(func() (struct{}, error) {
		return struct{}{}, c.next.DeleteAccount(ctx, creds)
	})
	return breakerErr(err)
}

func (c *circuitBreakMiddleware) Statement(ctx context.Context, w io.Writer, creds Credentials) error {
	_, err := c.brkrs.Statement.Execute(func() (struct{}, error) {
		return struct{}{}, c.next.Statement(ctx, w, creds)
	})
	return breakerErr(err)
}
