package ability

import "github.com/kodix/kodix/internal/model"

func canCare(u User, role Role, action Action, subject Subject, obj any) bool {
	switch role {
	case RoleAdmin:
		switch subject {
		case SubjectCareTask, SubjectCalendarEvent:
			return true
		case SubjectCareShift:
			return action == ActionUnlock || action == ActionRead
		}
	case RoleCaregiver:
		switch subject {
		case SubjectCareTask:
			switch action {
			case ActionCreate, ActionRead, ActionUpdate:
				return true
			case ActionDelete:
				task, ok := careTask(obj)
				if !ok {
					return obj == nil
				}
				return task.CreatedByUserID == u.ID && !task.CreatedFromCalendar
			}
		case SubjectCalendarEvent:
			return action == ActionRead
		case SubjectCareShift:
			return action == ActionUnlock || action == ActionRead
		}
	}
	return false
}

func careTask(obj any) (model.CareTask, bool) {
	switch t := obj.(type) {
	case model.CareTask:
		return t, true
	case *model.CareTask:
		if t == nil {
			return model.CareTask{}, false
		}
		return *t, true
	}
	return model.CareTask{}, false
}
