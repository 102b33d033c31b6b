// Package authz decides who may do what with a task.
//
// Every predicate is pure: it looks only at the user and task passed in,
// never performs I/O and never fails. A nil user is an unauthenticated
// caller and is denied everything. Role comparison goes through
// model.User.EffectiveRole, so an unknown or inconsistent role gets the
// permissions of a plain User and nothing more.
//
// The same predicates run in the API server, where they are authoritative,
// and in the client, where they only save a round trip.
package authz

import "taskweb/internal/domain/model"

// elevated reports whether the user holds a role that manages all tasks.
func elevated(user *model.User) bool {
	if user == nil {
		return false
	}
	switch user.EffectiveRole() {
	case model.RoleAdministrator, model.RoleSupervisor:
		return true
	default:
		return false
	}
}

func CanCreateTask(user *model.User) bool {
	return elevated(user)
}

// CanEditTask allows managers to edit any task and plain users to edit the
// tasks they created.
func CanEditTask(user *model.User, task model.Task) bool {
	if user == nil {
		return false
	}
	if elevated(user) {
		return true
	}
	return user.EffectiveRole() == model.RoleUser && task.CreatorID == user.ID
}

func CanDeleteTask(user *model.User) bool {
	return elevated(user)
}

func CanAssignTask(user *model.User) bool {
	return elevated(user)
}

// CanSeeAllTasks reports whether the user may list every task. Everyone else
// is limited to tasks they created or are assigned to; that filtering happens
// in the query layer.
func CanSeeAllTasks(user *model.User) bool {
	return elevated(user)
}

// CanChangeStatus allows managers to move any task and the assignee to move
// their own.
func CanChangeStatus(user *model.User, task model.Task) bool {
	if user == nil {
		return false
	}
	return elevated(user) || task.IsAssignedTo(user.ID)
}

// CanViewTask mirrors the list filter for a single task.
func CanViewTask(user *model.User, task model.Task) bool {
	if user == nil {
		return false
	}
	return elevated(user) || task.CreatorID == user.ID || task.IsAssignedTo(user.ID)
}

// CanManageUsers is reserved to administrators.
func CanManageUsers(user *model.User) bool {
	return user != nil && user.EffectiveRole() == model.RoleAdministrator
}

// Permissions is a snapshot of the task-independent predicates, handy for
// rendering what a user may do.
type Permissions struct {
	CreateTasks bool `json:"createTasks"`
	DeleteTasks bool `json:"deleteTasks"`
	AssignTasks bool `json:"assignTasks"`
	SeeAllTasks bool `json:"seeAllTasks"`
	ManageUsers bool `json:"manageUsers"`
}

func PermissionsFor(user *model.User) Permissions {
	return Permissions{
		CreateTasks: CanCreateTask(user),
		DeleteTasks: CanDeleteTask(user),
		AssignTasks: CanAssignTask(user),
		SeeAllTasks: CanSeeAllTasks(user),
		ManageUsers: CanManageUsers(user),
	}
}
