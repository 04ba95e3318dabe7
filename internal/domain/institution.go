package domain

// Institution carries the defaults that operations would otherwise look up
// by name. It is resolved once at startup and passed to the services.
type Institution struct {
	SchoolName string
	Currency   string

	// BalanceForwardType is the payment type name recorded on
	// balance-brought-forward payments.
	BalanceForwardType string

	// DefaultSemesterCode is used when a registration names no semester.
	DefaultSemesterCode string
	DefaultSemesterID   int64

	Grading GradingScheme
	Honours []HonourBand
}

// DefaultInstitution returns an institution with the built-in schemes.
func DefaultInstitution() Institution {
	return Institution{
		SchoolName:          "Nnamdi Azikiwe University",
		Currency:            "NGN",
		BalanceForwardType:  "Balance Brought Forward",
		DefaultSemesterCode: "1st",
		Grading:             DefaultGradingScheme(),
		Honours:             DefaultHonours(),
	}
}
