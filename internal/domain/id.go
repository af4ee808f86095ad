package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ID 不透明标识符
// 后端的房间/住院记录使用整数主键，病人/员工使用 UUID，两种 JSON 形式都接受
type ID string

// String 实现 fmt.Stringer
func (id ID) String() string { return string(id) }

// IsZero 是否为空标识
func (id ID) IsZero() bool { return id == "" }

// UnmarshalJSON 接受 JSON 数字或字符串
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid id %s: %w", string(data), err)
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON 整数形式的标识按数字输出，其余按字符串输出
func (id ID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}
