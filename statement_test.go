package pinledger_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arhyth/pinledger"
)

func TestWriteStatement(t *testing.T) {
	as := assert.New(t)
	buf := new(bytes.Buffer)
	acct := &pinledger.Account{Name: "Asha", Age: 20, Email: "a@x.com", PIN: 1234, AcctNo: "a1B#2c3", Balance: 12500}

	err := pinledger.WriteStatement(buf, acct, time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC))
	require.Nil(t, err)
	as.True(bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
	as.Greater(buf.Len(), 500)
}

func TestWriteStatementEncodesLatin1(t *testing.T) {
	as := assert.New(t)
	buf := new(bytes.Buffer)
	acct := &pinledger.Account{Name: "José Müller", Email: "jose@x.com", PIN: 1234, AcctNo: "a1B#2c3"}

	require.Nil(t, pinledger.WriteStatement(buf, acct, time.Now()))
	as.Contains(buf.String(), "Jos\xe9 M\xfcller")
	as.NotContains(buf.String(), "José")
}
