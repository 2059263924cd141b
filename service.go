package pinledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/rs/zerolog"
)

//go:generate mockgen -source=service.go -destination=mocks/service.go -package=mocks

// Service is the account ledger engine. Every call loads the full record
// collection, applies one operation and, when it mutated anything, saves the
// full collection back.
type Service interface {
	CreateAccount(ctx context.Context, req CreateAccountReq) (*Account, error)
	Deposit(ctx context.Context, req ChargeReq) (*ChargeResult, error)
	Withdraw(ctx context.Context, req ChargeReq) (*ChargeResult, error)
	ViewDetails(ctx context.Context, creds Credentials) (*Account, error)
	BeginUpdate(ctx context.Context, creds Credentials) (*Draft, error)
	ConfirmUpdate(ctx context.Context, req ConfirmUpdateReq) (*Account, error)
	AbandonUpdate(ctx context.Context, draftID snowflake.ID) error
	DeleteAccount(ctx context.Context, creds Credentials) error
	Statement(ctx context.Context, w io.Writer, creds Credentials) error
}

type Policy struct {
	MinAge         int   `yaml:"min_age"`
	MaxTransaction int64 `yaml:"max_transaction"`
	IDAttempts     int   `yaml:"id_attempts"`
}

func DefaultPolicy() Policy {
	return Policy{
		MinAge:         18,
		MaxTransaction: 10000,
		IDAttempts:     5,
	}
}

// ServiceDeps are the collaborators of the engine. Only Store is required.
type ServiceDeps struct {
	Store    RecordStore
	IDGen    IDGenerator
	Locker   Locker
	Node     *snowflake.Node
	DraftTTL time.Duration
}

type serviceImpl struct {
	store  RecordStore
	idgen  IDGenerator
	locker Locker
	drafts *draftBook
	policy Policy
	log    *zerolog.Logger
}

var (
	_ Service = (*serviceImpl)(nil)
)

func NewService(deps ServiceDeps, policy Policy, log *zerolog.Logger) (*serviceImpl, error) {
	if deps.Store == nil {
		return nil, errors.New("record store is required")
	}
	def := DefaultPolicy()
	if policy.MinAge == 0 {
		policy.MinAge = def.MinAge
	}
	if policy.MaxTransaction == 0 {
		policy.MaxTransaction = def.MaxTransaction
	}
	if policy.IDAttempts < 1 {
		policy.IDAttempts = def.IDAttempts
	}
	if deps.IDGen == nil {
		deps.IDGen = NewRandomIDGenerator(nil)
	}
	if deps.Locker == nil {
		deps.Locker = NewLocalLocker()
	}
	if deps.Node == nil {
		node, err := snowflake.NewNode(0)
		if err != nil {
			return nil, err
		}
		deps.Node = node
	}
	if deps.DraftTTL <= 0 {
		deps.DraftTTL = 10 * time.Minute
	}

	return &serviceImpl{
		store:  deps.Store,
		idgen:  deps.IDGen,
		locker: deps.Locker,
		drafts: newDraftBook(deps.Node, deps.DraftTTL),
		policy: policy,
		log:    nopIfNil(log),
	}, nil
}

// mutateFunc receives a freshly loaded collection and returns the collection
// to persist along with whether it must be written at all.
type mutateFunc func(records []Account) ([]Account, bool, error)

func (s *serviceImpl) withRecords(ctx context.Context, fn mutateFunc) error {
	unlock, err := s.locker.Lock(ctx)
	if err != nil {
		return ErrStorage{Op: "lock", Err: err}
	}
	defer unlock()

	records, err := s.store.Load(ctx)
	if err != nil {
		return err
	}
	next, dirty, err := fn(records)
	if err != nil || !dirty {
		return err
	}
	return s.store.Save(ctx, next)
}

func (s *serviceImpl) CreateAccount(ctx context.Context, req CreateAccountReq) (*Account, error) {
	if req.Age < s.policy.MinAge || !isPINFormat(req.PIN) {
		return nil, ErrValidation{
			Reason: fmt.Sprintf("age must be %d+ and PIN must be 4 digits", s.policy.MinAge),
		}
	}
	pin, _ := parsePIN(req.PIN)

	var acct Account
	err := s.withRecords(ctx, func(records []Account) ([]Account, bool, error) {
		acctNo, err := s.newAcctNo(records)
		if err != nil {
			return nil, false, err
		}
		acct = Account{
			Name:    req.Name,
			Age:     req.Age,
			Email:   req.Email,
			PIN:     pin,
			AcctNo:  acctNo,
			Balance: 0,
		}
		return append(records, acct), true, nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("acc_no", acct.AcctNo).Msg("account created")
	return &acct, nil
}

// newAcctNo draws account numbers until one is not taken by records.
func (s *serviceImpl) newAcctNo(records []Account) (string, error) {
	taken := make(map[string]struct{}, len(records))
	for _, r := range records {
		taken[r.AcctNo] = struct{}{}
	}
	for i := 0; i < s.policy.IDAttempts; i++ {
		acctNo := s.idgen.Generate()
		if _, dup := taken[acctNo]; !dup {
			return acctNo, nil
		}
		s.log.Warn().Int("attempt", i+1).Msg("account number collision")
	}
	return "", ErrIDExhausted
}

func (s *serviceImpl) Deposit(ctx context.Context, req ChargeReq) (*ChargeResult, error) {
	pin, ok := parsePIN(req.PIN)
	if !ok {
		return nil, ErrAuth
	}

	var res ChargeResult
	err := s.withRecords(ctx, func(records []Account) ([]Account, bool, error) {
		idx := findAccount(records, req.AcctNo, pin)
		if idx < 0 {
			return nil, false, ErrAuth
		}
		if req.Amount > s.policy.MaxTransaction {
			return nil, false, ErrLimit{Op: "deposit", Limit: s.policy.MaxTransaction}
		}
		records[idx].Balance += req.Amount
		res = ChargeResult{
			AcctNo:  req.AcctNo,
			Amount:  req.Amount,
			Balance: records[idx].Balance,
		}
		return records, true, nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("acc_no", res.AcctNo).Int64("amount", res.Amount).Msg("deposit")
	return &res, nil
}

// Withdraw checks the balance before the transaction limit, so an amount that
// is both over the limit and over the balance reports insufficient funds.
func (s *serviceImpl) Withdraw(ctx context.Context, req ChargeReq) (*ChargeResult, error) {
	pin, ok := parsePIN(req.PIN)
	if !ok {
		return nil, ErrAuth
	}

	var res ChargeResult
	err := s.withRecords(ctx, func(records []Account) ([]Account, bool, error) {
		idx := findAccount(records, req.AcctNo, pin)
		if idx < 0 {
			return nil, false, ErrAuth
		}
		bal := records[idx].Balance
		if req.Amount > bal {
			return nil, false, ErrInsufficientFunds{Balance: bal, Amount: req.Amount}
		}
		if req.Amount > s.policy.MaxTransaction {
			return nil, false, ErrLimit{Op: "withdrawal", Limit: s.policy.MaxTransaction}
		}
		records[idx].Balance = bal - req.Amount
		res = ChargeResult{
			AcctNo:  req.AcctNo,
			Amount:  req.Amount,
			Balance: records[idx].Balance,
		}
		return records, true, nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("acc_no", res.AcctNo).Int64("amount", res.Amount).Msg("withdrawal")
	return &res, nil
}

func (s *serviceImpl) ViewDetails(ctx context.Context, creds Credentials) (*Account, error) {
	pin, ok := parsePIN(creds.PIN)
	if !ok {
		return nil, ErrAuth
	}

	var acct Account
	err := s.withRecords(ctx, func(records []Account) ([]Account, bool, error) {
		idx := findAccount(records, creds.AcctNo, pin)
		if idx < 0 {
			return nil, false, ErrAuth
		}
		acct = records[idx]
		return nil, false, nil
	})
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

// BeginUpdate resolves the account and opens a draft pre-filled with its
// editable fields. Nothing is written until ConfirmUpdate.
func (s *serviceImpl) BeginUpdate(ctx context.Context, creds Credentials) (*Draft, error) {
	acct, err := s.ViewDetails(ctx, creds)
	if err != nil {
		return nil, err
	}
	d := s.drafts.open(*acct)
	s.log.Debug().Str("acc_no", d.AcctNo).Str("draft_id", d.ID.String()).Msg("update draft opened")
	return d, nil
}

// ConfirmUpdate overwrites name, email and PIN as given. Unlike account
// creation it does not check PIN length or empty fields.
func (s *serviceImpl) ConfirmUpdate(ctx context.Context, req ConfirmUpdateReq) (*Account, error) {
	d, ok := s.drafts.get(req.DraftID)
	if !ok {
		return nil, ErrDraftNotFound{ID: req.DraftID}
	}
	pin, ok := parsePIN(req.Credentials.PIN)
	if !ok || req.AcctNo != d.AcctNo || pin != d.pin {
		return nil, ErrAuth
	}
	newPIN, ok := parsePIN(req.PIN)
	if !ok {
		return nil, ErrValidation{Reason: "PIN must be numeric"}
	}

	var acct Account
	err := s.withRecords(ctx, func(records []Account) ([]Account, bool, error) {
		idx := findAccount(records, d.AcctNo, d.pin)
		if idx < 0 {
			return nil, false, ErrAuth
		}
		records[idx].Name = req.Name
		records[idx].Email = req.Email
		records[idx].PIN = newPIN
		acct = records[idx]
		return records, true, nil
	})
	if errors.Is(err, ErrAuth) {
		s.drafts.discard(d.ID)
	}
	if err != nil {
		return nil, err
	}

	s.drafts.discard(d.ID)
	s.log.Info().Str("acc_no", acct.AcctNo).Msg("details updated")
	return &acct, nil
}

func (s *serviceImpl) AbandonUpdate(_ context.Context, draftID snowflake.ID) error {
	s.drafts.discard(draftID)
	return nil
}

func (s *serviceImpl) DeleteAccount(ctx context.Context, creds Credentials) error {
	pin, ok := parsePIN(creds.PIN)
	if !ok {
		return ErrAuth
	}

	err := s.withRecords(ctx, func(records []Account) ([]Account, bool, error) {
		idx := findAccount(records, creds.AcctNo, pin)
		if idx < 0 {
			return nil, false, ErrAuth
		}
		return slices.Delete(records, idx, idx+1), true, nil
	})
	if err != nil {
		return err
	}

	s.log.Info().Str("acc_no", creds.AcctNo).Msg("account deleted")
	return nil
}

func (s *serviceImpl) Statement(ctx context.Context, w io.Writer, creds Credentials) error {
	acct, err := s.ViewDetails(ctx, creds)
	if err != nil {
		return err
	}
	return WriteStatement(w, acct, time.Now())
}
