// Package rule 封装 go-playground/validator，统一使用 rule 标签，
// 并注册流水线自己的校验：对象键路径段与 owner/文档标识.
package rule

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// TagIdentifier owner 与文档 id 的校验别名.
const TagIdentifier = "identifier"

var (
	inst *validator.Validate
	once sync.Once
)

// initValidator 优先复用 gin 的 validator，使请求绑定也走 rule 标签.
func initValidator() {
	if engine := binding.Validator.Engine(); engine != nil {
		if v, ok := engine.(*validator.Validate); ok {
			inst = v
		}
	}

	if inst == nil {
		inst = validator.New()
	}

	inst.SetTagName("rule")

	_ = inst.RegisterValidation("pathsegment", isPathSegment)
	inst.RegisterAlias(TagIdentifier, "required,max=128,pathsegment")
}

// isPathSegment 能作为对象键中一段路径：非空、不含 /、不是 . 或 ..
func isPathSegment(fl validator.FieldLevel) bool {
	s := fl.Field().String()

	return s != "" && s != "." && s != ".." && !strings.Contains(s, "/")
}

func lazyInit() {
	once.Do(initValidator)
}

// Engine 返回全局 *validator.Validate.
func Engine() *validator.Validate {
	lazyInit()

	return inst
}

// RegisterValidation 注册自定义校验.
func RegisterValidation(tag string, fn validator.Func, opts ...bool) error {
	lazyInit()

	return inst.RegisterValidation(tag, fn, opts...)
}

// ValidationErrors 字段名到可读错误信息.
type ValidationErrors map[string]string

// Errors 把校验错误展开成字段字典，非校验错误返回 nil.
func Errors(err error) ValidationErrors {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return nil
	}

	out := make(ValidationErrors, len(ves))
	for _, fe := range ves {
		if fe.Param() != "" {
			out[fe.Field()] = fmt.Sprintf("failed on %s=%s", fe.Tag(), fe.Param())
		} else {
			out[fe.Field()] = "failed on " + fe.Tag()
		}
	}

	return out
}

// ValidateStruct 对结构体执行完整校验.
func ValidateStruct(s any) error {
	lazyInit()

	return inst.Struct(s)
}

// ValidateVar 按规则校验单个变量，例如 ValidateVar(id, rule.TagIdentifier).
func ValidateVar(field any, tag string) error {
	lazyInit()

	return inst.Var(field, tag)
}

// RegisterAlias 注册别名规则.
func RegisterAlias(alias, rules string) {
	lazyInit()

	inst.RegisterAlias(alias, rules)
}
