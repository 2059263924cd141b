package pinledger

import (
	"strconv"

	"github.com/bwmarrin/snowflake"
)

// Account is the persisted unit of ledger state for one customer. The JSON
// field names are the on-disk document format and must not change.
//
// PIN is kept as an integer for compatibility with existing documents, so
// leading zeros are lost: "0099" and "99" resolve to the same account.
type Account struct {
	Name    string `json:"name"`
	Age     int    `json:"age"`
	Email   string `json:"email"`
	PIN     int    `json:"pin"`
	AcctNo  string `json:"acc_No"`
	Balance int64  `json:"balance"`
}

// Credentials identify an account. PIN is the text the user typed.
type Credentials struct {
	AcctNo string
	PIN    string
}

type CreateAccountReq struct {
	Name  string `json:"name"`
	Age   int    `json:"age"`
	Email string `json:"email"`
	PIN   string `json:"pin"`
}

type ChargeReq struct {
	Credentials
	Amount int64
}

type ChargeResult struct {
	AcctNo  string `json:"acc_No"`
	Amount  int64  `json:"amount"`
	Balance int64  `json:"balance"`
}

type ConfirmUpdateReq struct {
	Credentials
	DraftID snowflake.ID
	Name    string `json:"name"`
	Email   string `json:"email"`
	PIN     string `json:"pin"`
}

// isPINFormat reports whether pin is exactly four ASCII digits.
func isPINFormat(pin string) bool {
	if len(pin) != 4 {
		return false
	}
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return false
		}
	}
	return true
}

// findAccount returns the index of the first record matching both the account
// number and the integer value of pin, or -1.
func findAccount(records []Account, acctNo string, pin int) int {
	for i := range records {
		if records[i].AcctNo == acctNo && records[i].PIN == pin {
			return i
		}
	}
	return -1
}

func parsePIN(pin string) (int, bool) {
	n, err := strconv.Atoi(pin)
	if err != nil {
		return 0, false
	}
	return n, true
}

func formatPIN(pin int) string {
	return strconv.Itoa(pin)
}
