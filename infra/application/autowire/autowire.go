package autowire

// 基于结构体标签的依赖注入：`infra:"dep:<name>"`，名称以 '?' 结尾表示可选依赖。
// 字段必须导出且可赋值；注入成功后把依赖名追加到组件的运行时依赖中，保证启动/停止顺序。

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/core"
)

const tagKey = "infra"

type runtimeDepAdder interface {
	AddDependencies(...string)
}

// DepTag 解析后的依赖标签
type DepTag struct {
	Field    string
	Name     string
	Optional bool
}

// ParseTag 解析 `dep:<name>[?]`，非依赖标签返回 ok=false。
func ParseTag(tag string) (name string, optional bool, ok bool) {
	if !strings.HasPrefix(tag, "dep:") {
		return "", false, false
	}
	name = strings.TrimSpace(strings.TrimPrefix(tag, "dep:"))
	if strings.HasSuffix(name, "?") {
		optional = true
		name = strings.TrimSpace(strings.TrimSuffix(name, "?"))
	}
	return name, optional, name != ""
}

// Tags 列出组件上声明的依赖标签；内嵌的值类型结构体会展开，字段按提升后的名称返回。
func Tags(comp any) []DepTag {
	v := reflect.ValueOf(comp)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}
	return structTags(v.Type())
}

func structTags(t reflect.Type) []DepTag {
	var out []DepTag
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous && f.Type.Kind() == reflect.Struct {
			out = append(out, structTags(f.Type)...)
			continue
		}
		if f.PkgPath != "" {
			continue
		}
		name, optional, ok := ParseTag(f.Tag.Get(tagKey))
		if !ok {
			continue
		}
		out = append(out, DepTag{Field: f.Name, Name: name, Optional: optional})
	}
	return out
}

// InjectAll 对容器内所有组件执行注入，错误汇总返回。
func InjectAll(c *core.Container) error {
	registered := c.ListRegistered()
	names := make([]string, 0, len(registered))
	for name := range registered {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []string
	for _, name := range names {
		if err := Inject(c, registered[name]); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", name, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("autowire errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func Inject(c *core.Container, comp core.Component) error {
	if comp == nil {
		return nil
	}
	val := reflect.ValueOf(comp)
	if val.Kind() != reflect.Ptr || val.Elem().Kind() != reflect.Struct {
		return nil
	}
	val = val.Elem()
	adder, _ := comp.(runtimeDepAdder)

	for _, tag := range Tags(comp) {
		resolved, err := c.Resolve(tag.Name)
		if err != nil {
			if tag.Optional {
				continue
			}
			return fmt.Errorf("resolve %s failed: %w", tag.Name, err)
		}
		fv := val.FieldByName(tag.Field)
		if !fv.CanSet() {
			return fmt.Errorf("field %s not settable", tag.Field)
		}
		if err := assignValue(fv, resolved); err != nil {
			return fmt.Errorf("assign %s -> field %s failed: %w", tag.Name, tag.Field, err)
		}
		if adder != nil {
			adder.AddDependencies(tag.Name)
		}
	}
	return nil
}

func assignValue(dst reflect.Value, src any) error {
	sv := reflect.ValueOf(src)
	switch {
	case dst.Kind() == reflect.Interface && sv.Type().Implements(dst.Type()):
		dst.Set(sv)
	case sv.Type().AssignableTo(dst.Type()):
		dst.Set(sv)
	default:
		return fmt.Errorf("incompatible types: %s -> %s", sv.Type(), dst.Type())
	}
	return nil
}
