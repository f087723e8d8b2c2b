package models

// Kind идентифицирует тип сущности. Значения совпадают с именами
// коллекций в backup-документе.
type Kind string

const (
	KindProject       Kind = "projects"
	KindGoal          Kind = "goals"
	KindListItem      Kind = "listItems"
	KindDocument      Kind = "documents"
	KindDocumentItem  Kind = "documentItems"
	KindChecklist     Kind = "checklists"
	KindChecklistItem Kind = "checklistItems"
	KindAttachment    Kind = "attachments"
	KindCrossRef      Kind = "projectAttachmentCrossRefs"
	KindActivity      Kind = "activityRecords"
	KindInbox         Kind = "inboxRecords"
	KindScript        Kind = "scripts"
	KindExecutionLog  Kind = "projectExecutionLogs"
	KindRecentEntry   Kind = "recentProjectEntries"
	KindLinkItem      Kind = "linkItems"
	KindBacklogOrder  Kind = "backlogOrders"
)

// Project - проект (список дел). Корневая сущность, на которую ссылается
// большинство остальных. ParentID задает иерархию проектов и может
// указывать на несуществующий проект после частичного импорта - такая
// ссылка очищается, сам проект не отбрасывается.
// SystemKey выделяет системные проекты (Inbox и т.п.): они синхронизируются
// как обычные записи, но при выборочном импорте ищутся по ключу и никогда
// не дублируются.
type Project struct {
	SyncMeta
	Description *string `json:"description,omitempty"`
	ParentID    *string `json:"parentId,omitempty"`
	SystemKey   *string `json:"systemKey,omitempty"`
	Name        string  `json:"name"`
	CreatedAt   int64   `json:"createdAt"`
}

func (Project) ParentRefs() []Ref { return nil }

// IsSystem возвращает true для системных проектов.
func (p Project) IsSystem() bool { return p.SystemKey != nil && *p.SystemKey != "" }

// Goal - цель. Не имеет обязательных родителей, связи со списками
// выражаются через ListItem.
type Goal struct {
	SyncMeta
	Description *string `json:"description,omitempty"`
	Text        string  `json:"text"`
	CreatedAt   int64   `json:"createdAt"`
	Completed   bool    `json:"completed"`
}

func (Goal) ParentRefs() []Ref { return nil }

// ListItem - привязка сущности (цели, документа, ...) к backlog-у проекта.
// Поле Order дублирует позицию из BacklogOrder: выигравший order-рекорд
// переносится сюда при merge.
type ListItem struct {
	SyncMeta
	ProjectID string `json:"projectId"`
	ItemType  string `json:"itemType"`
	EntityID  string `json:"entityId"`
	Order     int64  `json:"order"`
}

func (li ListItem) ParentRefs() []Ref {
	return []Ref{{Kind: KindProject, ID: li.ProjectID}}
}

// NoteDocument - структурированный документ заметок внутри проекта.
type NoteDocument struct {
	SyncMeta
	ProjectID      string `json:"projectId"`
	Name           string `json:"name"`
	Content        string `json:"content"`
	CursorPosition int64  `json:"lastCursorPosition"`
	CreatedAt      int64  `json:"createdAt"`
}

func (d NoteDocument) ParentRefs() []Ref {
	return []Ref{{Kind: KindProject, ID: d.ProjectID}}
}

// NoteDocumentItem - строка документа. DocumentID в wire-формате называется
// listId (историческое имя колонки).
type NoteDocumentItem struct {
	SyncMeta
	ParentID   *string `json:"parentId,omitempty"`
	DocumentID string  `json:"listId"`
	Content    string  `json:"content"`
	ItemOrder  int64   `json:"itemOrder"`
	CreatedAt  int64   `json:"createdAt"`
	Completed  bool    `json:"isCompleted"`
}

func (di NoteDocumentItem) ParentRefs() []Ref {
	return []Ref{{Kind: KindDocument, ID: di.DocumentID}}
}

// Checklist - чеклист проекта.
type Checklist struct {
	SyncMeta
	ProjectID string `json:"projectId"`
	Name      string `json:"name"`
}

func (c Checklist) ParentRefs() []Ref {
	return []Ref{{Kind: KindProject, ID: c.ProjectID}}
}

// ChecklistItem - пункт чеклиста.
type ChecklistItem struct {
	SyncMeta
	ChecklistID string `json:"checklistId"`
	Content     string `json:"content"`
	ItemOrder   int64  `json:"itemOrder"`
	Checked     bool   `json:"isChecked"`
}

func (ci ChecklistItem) ParentRefs() []Ref {
	return []Ref{{Kind: KindChecklist, ID: ci.ChecklistID}}
}

// Attachment - вложение (документ, чеклист, ссылка), привязанное к проекту.
// OwnerProjectID может быть nil для "свободных" вложений.
type Attachment struct {
	SyncMeta
	OwnerProjectID *string `json:"ownerProjectId,omitempty"`
	AttachmentType string  `json:"attachmentType"`
	EntityID       string  `json:"entityId"`
	CreatedAt      int64   `json:"createdAt"`
}

func (a Attachment) ParentRefs() []Ref {
	if a.OwnerProjectID == nil || *a.OwnerProjectID == "" {
		return nil
	}
	return []Ref{{Kind: KindProject, ID: *a.OwnerProjectID}}
}

// ProjectAttachmentCrossRef - join-строка проект/вложение с позицией
// вложения. Требует существования обоих родителей.
type ProjectAttachmentCrossRef struct {
	SyncMeta
	ProjectID       string `json:"projectId"`
	AttachmentID    string `json:"attachmentId"`
	AttachmentOrder int64  `json:"attachmentOrder"`
}

func (cr ProjectAttachmentCrossRef) ParentRefs() []Ref {
	return []Ref{
		{Kind: KindProject, ID: cr.ProjectID},
		{Kind: KindAttachment, ID: cr.AttachmentID},
	}
}

// CrossRefID строит стабильный id join-строки из пары ключей.
func CrossRefID(projectID, attachmentID string) string {
	return projectID + ":" + attachmentID
}

// ActivityRecord - запись журнала активности.
type ActivityRecord struct {
	SyncMeta
	Text      string `json:"text"`
	CreatedAt int64  `json:"createdAt"`
}

func (ActivityRecord) ParentRefs() []Ref { return nil }

// InboxRecord - запись входящих внутри проекта.
type InboxRecord struct {
	SyncMeta
	ProjectID string `json:"projectId"`
	Text      string `json:"text"`
	Order     int64  `json:"order"`
	CreatedAt int64  `json:"createdAt"`
}

func (ir InboxRecord) ParentRefs() []Ref {
	return []Ref{{Kind: KindProject, ID: ir.ProjectID}}
}

// Script - пользовательский скрипт, опционально привязан к проекту.
type Script struct {
	SyncMeta
	ProjectID   *string `json:"projectId,omitempty"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Content     string  `json:"content"`
	CreatedAt   int64   `json:"createdAt"`
}

func (s Script) ParentRefs() []Ref {
	if s.ProjectID == nil || *s.ProjectID == "" {
		return nil
	}
	return []Ref{{Kind: KindProject, ID: *s.ProjectID}}
}

// ProjectExecutionLog - запись журнала выполнения проекта.
type ProjectExecutionLog struct {
	SyncMeta
	ProjectID   string `json:"projectId"`
	LogType     string `json:"type"`
	Description string `json:"description"`
	OccurredAt  int64  `json:"timestamp"`
}

func (l ProjectExecutionLog) ParentRefs() []Ref {
	return []Ref{{Kind: KindProject, ID: l.ProjectID}}
}

// RecentProjectEntry - отметка о недавнем открытии проекта.
type RecentProjectEntry struct {
	SyncMeta
	ProjectID      string `json:"projectId"`
	LastAccessedAt int64  `json:"lastAccessedAt"`
}

func (re RecentProjectEntry) ParentRefs() []Ref {
	return []Ref{{Kind: KindProject, ID: re.ProjectID}}
}

// LinkItem - сохраненная ссылка.
type LinkItem struct {
	SyncMeta
	DisplayName *string `json:"displayName,omitempty"`
	LinkType    string  `json:"linkType"`
	Target      string  `json:"target"`
	CreatedAt   int64   `json:"createdAt"`
}

func (LinkItem) ParentRefs() []Ref { return nil }
