package parser

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/yproz/tg-bots/internal/app_errors"
)

// shape - вариант верхнего уровня ответа get-last50.
type shape int

const (
	shapeUnknown shape = iota
	// [ {..., "data": [...]}, ... ]
	shapeWrappedList
	// [ [ {...}, {...} ], ... ]
	shapeBareList
	// { "data": [...] }
	shapeObject
)

func (s shape) String() string {
	switch s {
	case shapeWrappedList:
		return "wrapped_list"
	case shapeBareList:
		return "bare_list"
	case shapeObject:
		return "object"
	}
	return "unknown"
}

// detectShape определяет вариант ответа и возвращает массив групп задач.
func detectShape(root gjson.Result) (shape, gjson.Result) {
	switch {
	case root.IsArray():
		var wrapped gjson.Result
		elems, groups := 0, 0
		root.ForEach(func(_, elem gjson.Result) bool {
			elems++
			if elem.IsArray() {
				groups++
			}
			if elem.IsObject() {
				if data := elem.Get("data"); data.Exists() {
					wrapped = data
					return false
				}
			}
			return true
		})
		if wrapped.Exists() {
			if !wrapped.IsArray() {
				return shapeUnknown, gjson.Result{}
			}
			return shapeWrappedList, wrapped
		}
		// непустой список без единой группы - например, тело ошибки [{"error":...}]
		if elems > 0 && groups == 0 {
			return shapeUnknown, gjson.Result{}
		}
		return shapeBareList, root

	case root.IsObject():
		data := root.Get("data")
		if !data.IsArray() {
			return shapeUnknown, gjson.Result{}
		}
		return shapeObject, data
	}
	return shapeUnknown, gjson.Result{}
}

// TaskStatus - состояние одной задачи парсера.
type TaskStatus struct {
	TaskID    string
	Status    string
	ReportURL string
}

// Completed - задача готова к разбору отчета.
func (t TaskStatus) Completed() bool {
	return t.Status == "completed" && t.ReportURL != ""
}

// Tasks индексирует задачи по userlabel.
type Tasks map[string]TaskStatus

func (t Tasks) Find(taskID string) (TaskStatus, bool) {
	status, ok := t[taskID]
	return status, ok
}

// ParseTasks разбирает тело ответа get-last50. Неизвестный формат
// возвращает ErrUnrecognizedFormat.
func ParseTasks(raw []byte) (Tasks, error) {
	if !gjson.ValidBytes(raw) {
		return nil, app_errors.Validation("parse tasks", fmt.Errorf("%w: invalid json", app_errors.ErrUnrecognizedFormat))
	}

	kind, groups := detectShape(gjson.ParseBytes(raw))
	if kind == shapeUnknown {
		return nil, app_errors.Validation("parse tasks", app_errors.ErrUnrecognizedFormat)
	}

	tasks := make(Tasks)
	groups.ForEach(func(_, group gjson.Result) bool {
		if !group.IsArray() {
			return true
		}
		var task TaskStatus
		group.ForEach(func(_, field gjson.Result) bool {
			if !field.IsObject() {
				return true
			}
			if v := field.Get("userlabel"); v.Exists() {
				task.TaskID = v.String()
			} else if v := field.Get("report_json"); v.Exists() {
				task.ReportURL = v.String()
			} else if v := field.Get("status"); v.Exists() {
				task.Status = v.String()
			}
			return true
		})
		// при повторе userlabel остается первая группа
		if _, dup := tasks[task.TaskID]; task.TaskID != "" && !dup {
			tasks[task.TaskID] = task
		}
		return true
	})
	return tasks, nil
}
