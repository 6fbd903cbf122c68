package domain

import "time"

// Claims are the verified contents of an access token.
type Claims struct {
	Subject   string
	Role      Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}
