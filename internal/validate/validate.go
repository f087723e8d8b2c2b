// Package validate фильтрует входящие батчи по ссылочной целостности.
// Запись с неразрешимым обязательным foreign key молча пропускается
// (skip, not fatal): остальной батч все равно применяется, прогресс
// синхронизации не блокируется частично поврежденным документом.
// Каждый пропуск учитывается в Report и виден вызывающей стороне.
package validate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/iudanet/forwardsync/internal/models"
)

// Known - множества известных id по типам сущностей. Родитель считается
// разрешимым, если он уже сохранен локально либо встретился раньше в этом
// же батче и сам не был отброшен.
type Known map[models.Kind]map[string]struct{}

// NewKnown строит множества известных id из локального снапшота.
// Tombstone-записи тоже попадают в множества: ребенок, пришедший вместе
// с уже удаленным родителем, будет принят и затем сам вытеснен
// tombstone-ом родителя при следующем обмене.
func NewKnown(db *models.Database) Known {
	k := make(Known)
	addAll(k, models.KindProject, db.Projects)
	addAll(k, models.KindGoal, db.Goals)
	addAll(k, models.KindListItem, db.ListItems)
	addAll(k, models.KindDocument, db.Documents)
	addAll(k, models.KindDocumentItem, db.DocumentItems)
	addAll(k, models.KindChecklist, db.Checklists)
	addAll(k, models.KindChecklistItem, db.ChecklistItems)
	addAll(k, models.KindAttachment, db.Attachments)
	addAll(k, models.KindCrossRef, db.ProjectAttachmentCrossRefs)
	addAll(k, models.KindActivity, db.ActivityRecords)
	addAll(k, models.KindInbox, db.InboxRecords)
	addAll(k, models.KindScript, db.Scripts)
	addAll(k, models.KindExecutionLog, db.ProjectExecutionLogs)
	addAll(k, models.KindRecentEntry, db.RecentProjectEntries)
	addAll(k, models.KindLinkItem, db.LinkItems)
	return k
}

func addAll[T models.Versioned](k Known, kind models.Kind, recs []T) {
	for _, r := range recs {
		k.Add(kind, r.RecordID())
	}
}

// Add регистрирует id как известный.
func (k Known) Add(kind models.Kind, id string) {
	set, ok := k[kind]
	if !ok {
		set = make(map[string]struct{})
		k[kind] = set
	}
	set[id] = struct{}{}
}

// Has возвращает true, если ссылка разрешима.
func (k Known) Has(ref models.Ref) bool {
	_, ok := k[ref.Kind][ref.ID]
	return ok
}

// Report накапливает статистику пропущенных записей. Пропуск - не ошибка,
// поэтому Report никогда не прерывает применение батча.
type Report struct {
	Skipped map[models.Kind]int
}

// NewReport создает пустой отчет.
func NewReport() *Report {
	return &Report{Skipped: make(map[models.Kind]int)}
}

// Skip учитывает пропущенную запись.
func (r *Report) Skip(kind models.Kind, id string, ref models.Ref) {
	r.Skipped[kind]++
}

// Total возвращает общее число пропущенных записей.
func (r *Report) Total() int {
	total := 0
	for _, n := range r.Skipped {
		total += n
	}
	return total
}

// Summary возвращает человекочитаемую сводку вида
// "3 records skipped due to missing parents (listItems=2, checklists=1)".
func (r *Report) Summary() string {
	total := r.Total()
	if total == 0 {
		return "no records skipped"
	}

	kinds := make([]string, 0, len(r.Skipped))
	for kind, n := range r.Skipped {
		if n > 0 {
			kinds = append(kinds, fmt.Sprintf("%s=%d", kind, n))
		}
	}
	sort.Strings(kinds)

	return fmt.Sprintf("%d records skipped due to missing parents (%s)", total, strings.Join(kinds, ", "))
}

// Filter отбрасывает записи с неразрешимыми обязательными родителями.
// Принятые записи сразу регистрируются в known, так что дети, идущие
// позже в том же батче, видят их как родителей.
func Filter[T models.Entity](kind models.Kind, recs []T, known Known, report *Report) []T {
	result := make([]T, 0, len(recs))

	for _, rec := range recs {
		ok := true
		for _, ref := range rec.ParentRefs() {
			if !known.Has(ref) {
				report.Skip(kind, rec.RecordID(), ref)
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		known.Add(kind, rec.RecordID())
		result = append(result, rec)
	}

	return result
}

// CleanProjects обрабатывает проекты: сам проект никогда не отбрасывается,
// но неразрешимый ParentID очищается - проект поднимается в корень
// иерархии вместо того, чтобы повиснуть на несуществующем родителе.
func CleanProjects(projects []models.Project, known Known) []models.Project {
	ids := make(map[string]struct{}, len(projects))
	for _, p := range projects {
		ids[p.ID] = struct{}{}
	}

	result := make([]models.Project, len(projects))
	for i, p := range projects {
		if p.ParentID != nil {
			if _, inBatch := ids[*p.ParentID]; !inBatch && !known.Has(models.Ref{Kind: models.KindProject, ID: *p.ParentID}) {
				p.ParentID = nil
			}
		}
		known.Add(models.KindProject, p.ID)
		result[i] = p
	}

	return result
}

// FilterOrders отбрасывает order-записи, чей список (проект) неизвестен.
func FilterOrders(orders []models.BacklogOrder, known Known, report *Report) []models.BacklogOrder {
	result := make([]models.BacklogOrder, 0, len(orders))
	for _, o := range orders {
		if !known.Has(models.Ref{Kind: models.KindProject, ID: o.ListID}) {
			report.Skip(models.KindBacklogOrder, o.ID, models.Ref{Kind: models.KindProject, ID: o.ListID})
			continue
		}
		result = append(result, o)
	}
	return result
}
