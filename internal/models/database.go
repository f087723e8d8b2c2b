package models

// Database - полный (или отфильтрованный) набор записей всех типов.
// Эта же структура является секцией "database" backup-документа, поэтому
// имена JSON-полей фиксированы wire-форматом.
type Database struct {
	Projects                   []Project                   `json:"projects"`
	Goals                      []Goal                      `json:"goals"`
	ListItems                  []ListItem                  `json:"listItems"`
	Documents                  []NoteDocument              `json:"documents"`
	DocumentItems              []NoteDocumentItem          `json:"documentItems"`
	Checklists                 []Checklist                 `json:"checklists"`
	ChecklistItems             []ChecklistItem             `json:"checklistItems"`
	Attachments                []Attachment                `json:"attachments"`
	ProjectAttachmentCrossRefs []ProjectAttachmentCrossRef `json:"projectAttachmentCrossRefs"`
	ActivityRecords            []ActivityRecord            `json:"activityRecords"`
	InboxRecords               []InboxRecord               `json:"inboxRecords"`
	Scripts                    []Script                    `json:"scripts"`
	ProjectExecutionLogs       []ProjectExecutionLog       `json:"projectExecutionLogs"`
	RecentProjectEntries       []RecentProjectEntry        `json:"recentProjectEntries"`
	LinkItems                  []LinkItem                  `json:"linkItems"`
	BacklogOrders              []BacklogOrder              `json:"backlogOrders,omitempty"`
}

// Normalize заменяет nil-коллекции пустыми срезами. Старые ревизии схемы
// могут не содержать части коллекций - отсутствующая коллекция читается
// как пустая, а не как ошибка.
func (db *Database) Normalize() {
	if db.Projects == nil {
		db.Projects = []Project{}
	}
	if db.Goals == nil {
		db.Goals = []Goal{}
	}
	if db.ListItems == nil {
		db.ListItems = []ListItem{}
	}
	if db.Documents == nil {
		db.Documents = []NoteDocument{}
	}
	if db.DocumentItems == nil {
		db.DocumentItems = []NoteDocumentItem{}
	}
	if db.Checklists == nil {
		db.Checklists = []Checklist{}
	}
	if db.ChecklistItems == nil {
		db.ChecklistItems = []ChecklistItem{}
	}
	if db.Attachments == nil {
		db.Attachments = []Attachment{}
	}
	if db.ProjectAttachmentCrossRefs == nil {
		db.ProjectAttachmentCrossRefs = []ProjectAttachmentCrossRef{}
	}
	if db.ActivityRecords == nil {
		db.ActivityRecords = []ActivityRecord{}
	}
	if db.InboxRecords == nil {
		db.InboxRecords = []InboxRecord{}
	}
	if db.Scripts == nil {
		db.Scripts = []Script{}
	}
	if db.ProjectExecutionLogs == nil {
		db.ProjectExecutionLogs = []ProjectExecutionLog{}
	}
	if db.RecentProjectEntries == nil {
		db.RecentProjectEntries = []RecentProjectEntry{}
	}
	if db.LinkItems == nil {
		db.LinkItems = []LinkItem{}
	}
	if db.BacklogOrders == nil {
		db.BacklogOrders = []BacklogOrder{}
	}
}

// IsEmpty возвращает true, если набор не содержит ни одной записи.
func (db *Database) IsEmpty() bool {
	return db.Count() == 0
}

// Count возвращает общее число записей во всех коллекциях.
func (db *Database) Count() int {
	return len(db.Projects) + len(db.Goals) + len(db.ListItems) +
		len(db.Documents) + len(db.DocumentItems) +
		len(db.Checklists) + len(db.ChecklistItems) +
		len(db.Attachments) + len(db.ProjectAttachmentCrossRefs) +
		len(db.ActivityRecords) + len(db.InboxRecords) +
		len(db.Scripts) + len(db.ProjectExecutionLogs) +
		len(db.RecentProjectEntries) + len(db.LinkItems) +
		len(db.BacklogOrders)
}
