package fota

import "fmt"

// Bank is one of the two firmware slots.
type Bank int

// Banks
const (
	User1 Bank = 0
	User2 Bank = 1
)

var bankNames = [...]string{"user1", "user2"}

// Other returns the bank which is not b.
func (b Bank) Other() Bank {
	if b == User1 {
		return User2
	}
	return User1
}

// IsValid tells if b is User1 or User2.
func (b Bank) IsValid() bool {
	return b == User1 || b == User2
}

// String implements fmt.Stringer.
func (b Bank) String() string {
	if b.IsValid() {
		return bankNames[b]
	}
	return fmt.Sprintf("bank(%d)", int(b))
}

// BinName is the image file name of the bank on the FOTA server.
func (b Bank) BinName() string {
	return b.String() + ".bin"
}

// ParseBank parses "user1" or "user2".
func ParseBank(s string) (Bank, error) {
	for n, name := range bankNames {
		if s == name {
			return Bank(n), nil
		}
	}
	return User1, fmt.Errorf("invalid bank %q", s)
}
