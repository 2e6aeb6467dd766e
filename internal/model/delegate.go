package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/consts"
)

// Delegate 远端执行进程
type Delegate struct {
	ID                 string                `gorm:"column:id;primaryKey;size:64" json:"id"`
	AccountID          string                `gorm:"column:account_id;size:64;not null" json:"account_id"`
	IP                 string                `gorm:"column:ip;size:64" json:"ip"`
	HostName           string                `gorm:"column:host_name;size:255" json:"host_name"`
	Description        string                `gorm:"column:description;size:512" json:"description,omitempty"`
	Version            string                `gorm:"column:version;size:32" json:"version,omitempty"`
	Status             consts.DelegateStatus `gorm:"column:status;size:16" json:"status"`
	Connected          bool                  `gorm:"column:connected" json:"connected"`
	LastHeartbeat      int64                 `gorm:"column:last_heartbeat" json:"last_heartbeat"`
	SupportedTaskTypes TaskTypeSet           `gorm:"column:supported_task_types;type:text" json:"supported_task_types"`
	CreatedAt          time.Time             `gorm:"column:created_at" json:"created_at"`
	LastUpdatedAt      time.Time             `gorm:"column:last_updated_at" json:"last_updated_at"`

	// 心跳上报的执行中任务，不落库
	CurrentlyExecutingTasks []string `gorm:"-" json:"currently_executing_tasks,omitempty"`
	// 升级检查结果，不落库
	DoUpgrade bool `gorm:"-" json:"do_upgrade,omitempty"`
}

func (Delegate) TableName() string { return "delegates" }

func (d *Delegate) Clone() *Delegate {
	if d == nil {
		return nil
	}
	cp := *d
	cp.SupportedTaskTypes = append(TaskTypeSet(nil), d.SupportedTaskTypes...)
	cp.CurrentlyExecutingTasks = append([]string(nil), d.CurrentlyExecutingTasks...)
	return &cp
}

// Supports 空集合不支持任何任务类型
func (d *Delegate) Supports(t consts.TaskType) bool {
	return d.SupportedTaskTypes.Contains(t)
}

// TaskTypeSet 有序去重集合，JSON 数组落库
type TaskTypeSet []consts.TaskType

func NewTaskTypeSet(types ...consts.TaskType) TaskTypeSet {
	seen := map[consts.TaskType]struct{}{}
	var out TaskTypeSet
	for _, t := range types {
		if _, ok := seen[t]; ok || t == "" {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s TaskTypeSet) Contains(t consts.TaskType) bool {
	for _, v := range s {
		if v == t {
			return true
		}
	}
	return false
}

func (s TaskTypeSet) Value() (driver.Value, error) {
	b, err := json.Marshal([]consts.TaskType(NewTaskTypeSet(s...)))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *TaskTypeSet) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*s = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported supported_task_types column type %T", src)
	}
	var list []consts.TaskType
	if err := json.Unmarshal(raw, &list); err != nil {
		return err
	}
	*s = NewTaskTypeSet(list...)
	return nil
}

// DelegateUpdate 部分更新，nil 字段不修改
type DelegateUpdate struct {
	Status             *consts.DelegateStatus
	LastHeartbeat      *int64
	Connected          *bool
	SupportedTaskTypes TaskTypeSet
	Version            *string
	Description        *string
	IP                 *string
	HostName           *string
}

// Columns 列名到值的映射，供 SQL 存储使用
func (u DelegateUpdate) Columns() map[string]any {
	cols := map[string]any{}
	if u.Status != nil {
		cols["status"] = string(*u.Status)
	}
	if u.LastHeartbeat != nil {
		cols["last_heartbeat"] = *u.LastHeartbeat
	}
	if u.Connected != nil {
		cols["connected"] = *u.Connected
	}
	if u.SupportedTaskTypes != nil {
		cols["supported_task_types"] = u.SupportedTaskTypes
	}
	if u.Version != nil {
		cols["version"] = *u.Version
	}
	if u.Description != nil {
		cols["description"] = *u.Description
	}
	if u.IP != nil {
		cols["ip"] = *u.IP
	}
	if u.HostName != nil {
		cols["host_name"] = *u.HostName
	}
	return cols
}

// Apply 把更新写到内存对象上
func (u DelegateUpdate) Apply(d *Delegate) {
	if u.Status != nil {
		d.Status = *u.Status
	}
	if u.LastHeartbeat != nil {
		d.LastHeartbeat = *u.LastHeartbeat
	}
	if u.Connected != nil {
		d.Connected = *u.Connected
	}
	if u.SupportedTaskTypes != nil {
		d.SupportedTaskTypes = NewTaskTypeSet(u.SupportedTaskTypes...)
	}
	if u.Version != nil {
		d.Version = *u.Version
	}
	if u.Description != nil {
		d.Description = *u.Description
	}
	if u.IP != nil {
		d.IP = *u.IP
	}
	if u.HostName != nil {
		d.HostName = *u.HostName
	}
}
