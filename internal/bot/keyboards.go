package bot

// Callback data values
const (
	cbAdminLogin   = "admin_login"
	cbTeacherLogin = "teacher_login"

	cbCreateTeacher  = "create_teacher"
	cbDeleteTeacher  = "delete_teacher"
	cbResetCode      = "reset_code"
	cbUnblockTeacher = "unblock_teacher"
	cbListTeachers   = "list_teachers"
	cbBackupDB       = "backup_db"
	cbListBackups    = "list_backups"
	cbAdminLogout    = "admin_logout"
	cbAdminMenu      = "admin_menu"

	cbMySalary      = "my_salary"
	cbTeacherLogout = "teacher_logout"
	cbTeacherMenu   = "teacher_menu"
)

func column(buttons ...Button) [][]Button {
	rows := make([][]Button, 0, len(buttons))
	for _, b := range buttons {
		rows = append(rows, []Button{b})
	}
	return rows
}

func roleKeyboard() [][]Button {
	return column(
		Button{Text: "Admin Login", Data: cbAdminLogin},
		Button{Text: "Teacher Login", Data: cbTeacherLogin},
	)
}

func adminKeyboard() [][]Button {
	return column(
		Button{Text: "Create Teacher", Data: cbCreateTeacher},
		Button{Text: "Delete Teacher", Data: cbDeleteTeacher},
		Button{Text: "Reset Code", Data: cbResetCode},
		Button{Text: "Unblock Teacher", Data: cbUnblockTeacher},
		Button{Text: "List Teachers", Data: cbListTeachers},
		Button{Text: "Backup DB", Data: cbBackupDB},
		Button{Text: "List Backups", Data: cbListBackups},
		Button{Text: "Logout", Data: cbAdminLogout},
	)
}

func backToAdminKeyboard() [][]Button {
	return column(Button{Text: "Back to Menu", Data: cbAdminMenu})
}

func teacherKeyboard() [][]Button {
	return column(
		Button{Text: "My Salary", Data: cbMySalary},
		Button{Text: "Logout", Data: cbTeacherLogout},
	)
}

func salaryKeyboard() [][]Button {
	return column(
		Button{Text: "🔄 Refresh Data", Data: cbMySalary},
		Button{Text: "🚪 Logout", Data: cbTeacherLogout},
	)
}
