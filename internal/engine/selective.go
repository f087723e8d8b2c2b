package engine

import (
	"context"

	"github.com/iudanet/forwardsync/internal/backup"
	"github.com/iudanet/forwardsync/internal/models"
)

// ImportSelected применяет из документа только выбранные проекты (и их
// потомков) вместе с принадлежащими им записями. Пустой список projectIDs
// означает "все проекты".
//
// Системные проекты (Inbox и т.п.) никогда не дублируются: входящий
// системный проект сопоставляется с локальным по systemKey, его записи
// перевешиваются на локальный проект, сам дубликат отбрасывается.
func (e *Engine) ImportSelected(ctx context.Context, doc *backup.Document, projectIDs []string) (*ApplyReport, error) {
	if doc.Database == nil {
		return nil, ErrMissingDatabase
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.setState(StateImporting)

	snapshot, err := e.store.Snapshot(ctx)
	if err != nil {
		e.setState(StateError)
		return nil, &StorageError{Op: "selective import snapshot", Err: err}
	}

	subset := selectSubset(doc.Database, projectIDs)
	remapSystemProjects(subset, snapshot.Projects)

	report, err := e.applyDatabase(ctx, subset)
	if err != nil {
		e.setState(StateError)
		return nil, err
	}

	e.setState(StateIdle)
	e.log.Info("applied selective import",
		"selected_projects", len(projectIDs),
		"applied", report.Applied,
		"stale", report.Stale,
		"skipped", report.Validation.Total(),
	)
	return report, nil
}

// selectSubset оставляет выбранные проекты, их потомков и записи,
// принадлежащие оставленным проектам. Сущности, на которые ссылаются
// оставленные listItems и вложения, тоже попадают в срез. Журнал
// активности не привязан к проектам и при выборочном импорте опускается.
func selectSubset(db *models.Database, projectIDs []string) *models.Database {
	if len(projectIDs) == 0 {
		full := *db
		full.Normalize()
		return &full
	}

	kept := make(map[string]struct{}, len(projectIDs))
	for _, id := range projectIDs {
		kept[id] = struct{}{}
	}

	// Потомки выбранных проектов до фикспоинта: иерархия в документе
	// не упорядочена.
	for changed := true; changed; {
		changed = false
		for _, p := range db.Projects {
			if _, ok := kept[p.ID]; ok {
				continue
			}
			if p.ParentID == nil {
				continue
			}
			if _, ok := kept[*p.ParentID]; ok {
				kept[p.ID] = struct{}{}
				changed = true
			}
		}
	}

	out := &models.Database{}
	for _, p := range db.Projects {
		if _, ok := kept[p.ID]; ok {
			out.Projects = append(out.Projects, p)
		}
	}

	// Сущности, на которые ссылаются элементы и вложения оставленных
	// проектов, переносятся вместе с ними.
	wantedEntities := make(map[string]struct{})

	for _, li := range db.ListItems {
		if _, ok := kept[li.ProjectID]; ok {
			out.ListItems = append(out.ListItems, li)
			wantedEntities[li.EntityID] = struct{}{}
		}
	}

	wantedAttachments := make(map[string]struct{})
	for _, cr := range db.ProjectAttachmentCrossRefs {
		if _, ok := kept[cr.ProjectID]; ok {
			out.ProjectAttachmentCrossRefs = append(out.ProjectAttachmentCrossRefs, cr)
			wantedAttachments[cr.AttachmentID] = struct{}{}
		}
	}

	for _, a := range db.Attachments {
		owned := a.OwnerProjectID != nil && contains(kept, *a.OwnerProjectID)
		if _, linked := wantedAttachments[a.ID]; owned || linked {
			out.Attachments = append(out.Attachments, a)
			wantedEntities[a.EntityID] = struct{}{}
		}
	}

	keptDocs := make(map[string]struct{})
	for _, d := range db.Documents {
		if _, byEntity := wantedEntities[d.ID]; byEntity || contains(kept, d.ProjectID) {
			out.Documents = append(out.Documents, d)
			keptDocs[d.ID] = struct{}{}
		}
	}
	for _, di := range db.DocumentItems {
		if _, ok := keptDocs[di.DocumentID]; ok {
			out.DocumentItems = append(out.DocumentItems, di)
		}
	}

	keptChecklists := make(map[string]struct{})
	for _, c := range db.Checklists {
		if _, byEntity := wantedEntities[c.ID]; byEntity || contains(kept, c.ProjectID) {
			out.Checklists = append(out.Checklists, c)
			keptChecklists[c.ID] = struct{}{}
		}
	}
	for _, ci := range db.ChecklistItems {
		if _, ok := keptChecklists[ci.ChecklistID]; ok {
			out.ChecklistItems = append(out.ChecklistItems, ci)
		}
	}

	for _, g := range db.Goals {
		if _, ok := wantedEntities[g.ID]; ok {
			out.Goals = append(out.Goals, g)
		}
	}
	for _, l := range db.LinkItems {
		if _, ok := wantedEntities[l.ID]; ok {
			out.LinkItems = append(out.LinkItems, l)
		}
	}
	for _, s := range db.Scripts {
		byEntity := contains(wantedEntities, s.ID)
		byProject := s.ProjectID != nil && contains(kept, *s.ProjectID)
		if byEntity || byProject {
			out.Scripts = append(out.Scripts, s)
		}
	}

	for _, ir := range db.InboxRecords {
		if contains(kept, ir.ProjectID) {
			out.InboxRecords = append(out.InboxRecords, ir)
		}
	}
	for _, l := range db.ProjectExecutionLogs {
		if contains(kept, l.ProjectID) {
			out.ProjectExecutionLogs = append(out.ProjectExecutionLogs, l)
		}
	}
	for _, re := range db.RecentProjectEntries {
		if contains(kept, re.ProjectID) {
			out.RecentProjectEntries = append(out.RecentProjectEntries, re)
		}
	}
	for _, o := range db.BacklogOrders {
		if contains(kept, o.ListID) {
			out.BacklogOrders = append(out.BacklogOrders, o)
		}
	}

	out.Normalize()
	return out
}

func contains(set map[string]struct{}, id string) bool {
	_, ok := set[id]
	return ok
}

// remapSystemProjects сопоставляет входящие системные проекты с локальными
// по systemKey. Входящий дубликат отбрасывается, все его записи
// перевешиваются на id локального проекта.
func remapSystemProjects(db *models.Database, localProjects []models.Project) {
	localByKey := make(map[string]models.Project)
	for _, p := range localProjects {
		if p.IsSystem() && !p.IsDeleted {
			localByKey[*p.SystemKey] = p
		}
	}
	if len(localByKey) == 0 {
		return
	}

	idMap := make(map[string]string)
	keptProjects := make([]models.Project, 0, len(db.Projects))
	for _, p := range db.Projects {
		if p.IsSystem() {
			if loc, ok := localByKey[*p.SystemKey]; ok && loc.ID != p.ID {
				idMap[p.ID] = loc.ID
				continue
			}
		}
		keptProjects = append(keptProjects, p)
	}
	db.Projects = keptProjects

	if len(idMap) == 0 {
		return
	}

	remap := func(id string) string {
		if mapped, ok := idMap[id]; ok {
			return mapped
		}
		return id
	}
	remapPtr := func(id *string) *string {
		if id == nil {
			return nil
		}
		if mapped, ok := idMap[*id]; ok {
			return &mapped
		}
		return id
	}

	for i := range db.Projects {
		db.Projects[i].ParentID = remapPtr(db.Projects[i].ParentID)
	}
	for i := range db.ListItems {
		db.ListItems[i].ProjectID = remap(db.ListItems[i].ProjectID)
	}
	for i := range db.Documents {
		db.Documents[i].ProjectID = remap(db.Documents[i].ProjectID)
	}
	for i := range db.Checklists {
		db.Checklists[i].ProjectID = remap(db.Checklists[i].ProjectID)
	}
	for i := range db.Attachments {
		db.Attachments[i].OwnerProjectID = remapPtr(db.Attachments[i].OwnerProjectID)
	}
	for i := range db.ProjectAttachmentCrossRefs {
		cr := &db.ProjectAttachmentCrossRefs[i]
		if mapped, ok := idMap[cr.ProjectID]; ok {
			cr.ProjectID = mapped
			// id join-строки производный от пары ключей
			cr.ID = models.CrossRefID(cr.ProjectID, cr.AttachmentID)
		}
	}
	for i := range db.InboxRecords {
		db.InboxRecords[i].ProjectID = remap(db.InboxRecords[i].ProjectID)
	}
	for i := range db.Scripts {
		db.Scripts[i].ProjectID = remapPtr(db.Scripts[i].ProjectID)
	}
	for i := range db.ProjectExecutionLogs {
		db.ProjectExecutionLogs[i].ProjectID = remap(db.ProjectExecutionLogs[i].ProjectID)
	}
	for i := range db.RecentProjectEntries {
		db.RecentProjectEntries[i].ProjectID = remap(db.RecentProjectEntries[i].ProjectID)
	}
	for i := range db.BacklogOrders {
		db.BacklogOrders[i].ListID = remap(db.BacklogOrders[i].ListID)
	}
}
