package main

// authorize decides whether p may act on a resource owned by ownerID. It is
// a pure function of its inputs: no storage access, no side effects, the
// same answer no matter how often it is asked. Callers are expected to
// invoke it both as a pre-check and again inside the mutation transaction.
//
// The decision table, first match wins:
//  1. Administrators may do anything to anything.
//  2. Regular users may act on resources they own.
//  3. Everything else is forbidden.
//
// Creation has no pre-existing owner; handlers authorize it implicitly by
// setting the owner to the caller.
func authorize(p principal, ownerID int) error {
	if p.Role == roleAdministrator {
		return nil
	}
	if p.UserID == ownerID {
		return nil
	}
	return errForbidden
}
