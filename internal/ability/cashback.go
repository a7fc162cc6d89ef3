package ability

func canCashback(role Role, action Action, subject Subject) bool {
	if role != RoleAdmin && role != RoleCashier {
		return false
	}
	switch subject {
	case SubjectClient:
		return action == ActionRead
	case SubjectVoucher:
		// Vouchers are immutable once issued.
		return action == ActionCreate || action == ActionRead
	}
	return false
}
