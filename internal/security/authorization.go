package security

import "github.com/yourorg/biblioteca/internal/security/auth"

// Authorizer answers role questions for the lending API. Librarians act
// on any loan; members only on their own.
type Authorizer struct{}

func NewAuthorizer() *Authorizer {
	return &Authorizer{}
}

// CanReturnLoan reports whether the caller may return the given loan
func (a *Authorizer) CanReturnLoan(claims *auth.Claims, loanOwnerID string) bool {
	if claims == nil {
		return false
	}
	if claims.Role == auth.RoleLibrarian {
		return true
	}
	return claims.UserID == loanOwnerID
}

// CanCheckoutFor reports whether the caller may check a book out for the
// given member
func (a *Authorizer) CanCheckoutFor(claims *auth.Claims, userID string) bool {
	if claims == nil {
		return false
	}
	if claims.Role == auth.RoleLibrarian {
		return true
	}
	return claims.UserID == userID
}

// CanViewUserLoans reports whether the caller may list another member's loans
func (a *Authorizer) CanViewUserLoans(claims *auth.Claims, userID string) bool {
	if claims == nil {
		return false
	}
	if claims.Role == auth.RoleLibrarian {
		return true
	}
	return claims.UserID == userID
}

// CanAdjustInventory reports whether the caller may change a book's copy count
func (a *Authorizer) CanAdjustInventory(claims *auth.Claims) bool {
	return claims != nil && claims.Role == auth.RoleLibrarian
}

// CanDeleteLoan reports whether the caller may delete a loan record
func (a *Authorizer) CanDeleteLoan(claims *auth.Claims) bool {
	return claims != nil && claims.Role == auth.RoleLibrarian
}
