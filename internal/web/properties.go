package web

import (
	"fmt"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/solatis/microproto/internal/codec"
	"github.com/solatis/microproto/internal/property"
	"github.com/solatis/microproto/internal/types"
)

// propertyInfo is the REST form of one property.
type propertyInfo struct {
	ID          types.PropertyID `json:"id"`
	Name        string           `json:"name"`
	Type        string           `json:"type"`
	Persistent  bool             `json:"persistent"`
	ReadOnly    bool             `json:"readonly"`
	BLEExposed  bool             `json:"bleExposed,omitempty"`
	Group       uint8            `json:"group,omitempty"`
	Description string           `json:"description,omitempty"`
	UI          *uiInfo          `json:"ui,omitempty"`
	Value       any              `json:"value"`
}

type uiInfo struct {
	Widget     string `json:"widget"`
	Unit       string `json:"unit,omitempty"`
	Icon       string `json:"icon,omitempty"`
	ColorGroup uint8  `json:"colorGroup,omitempty"`
}

func uiOf(u property.UIHints) *uiInfo {
	if u.IsZero() {
		return nil
	}
	return &uiInfo{Widget: u.Widget.String(), Unit: u.Unit, Icon: u.Icon, ColorGroup: u.ColorGroup}
}

func describe(p property.Property) (propertyInfo, error) {
	v, err := property.Generic(p)
	if err != nil {
		return propertyInfo{}, err
	}
	return propertyInfo{
		ID:          p.ID(),
		Name:        p.Name(),
		Type:        p.TypeDef().String(),
		Persistent:  p.Flags().Has(property.FlagPersistent),
		ReadOnly:    p.Flags().Has(property.FlagReadOnly),
		BLEExposed:  p.Flags().Has(property.FlagBLEExposed),
		Group:       p.Group(),
		Description: p.Description(),
		UI:          uiOf(p.UI()),
		Value:       codec.ToJSON(v),
	}, nil
}

// visible looks up a property by name inside Exec. Hidden properties are
// not addressable over REST.
func (s *Server) visible(name string) (property.Property, error) {
	p, ok := s.sys.Registry().Lookup(name)
	if !ok || p.Flags().Has(property.FlagHidden) {
		return nil, fmt.Errorf("property %q: %w", name, types.ErrNotFound)
	}
	return p, nil
}

func (s *Server) listProperties(w http.ResponseWriter, r *http.Request, _ Params) {
	out := []propertyInfo{}
	err := s.sys.Exec(r.Context(), func() error {
		var err error
		s.sys.Registry().Each(func(p property.Property) bool {
			if p.Flags().Has(property.FlagHidden) {
				return true
			}
			var info propertyInfo
			if info, err = describe(p); err != nil {
				return false
			}
			out = append(out, info)
			return true
		})
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getProperty(w http.ResponseWriter, r *http.Request, p Params) {
	path, err := types.ParsePath(ParseQuery(r.URL.RawQuery).Get("path"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var out any
	err = s.sys.Exec(r.Context(), func() error {
		prop, err := s.visible(p.Get("name"))
		if err != nil {
			return err
		}
		v, err := property.Generic(prop)
		if err != nil {
			return err
		}
		res, err := codec.Resolve(path, v)
		if err != nil {
			return err
		}
		out = codec.ToJSON(res.Value)
		return nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": p.Get("name"), "value": out})
}

func (s *Server) putProperty(w http.ResponseWriter, r *http.Request, p Params) {
	path, err := types.ParsePath(ParseQuery(r.URL.RawQuery).Get("path"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.UseNumber()
	var in any
	if err := dec.Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	var out any
	err = s.sys.Exec(r.Context(), func() error {
		prop, err := s.visible(p.Get("name"))
		if err != nil {
			return err
		}
		if prop.Flags().Has(property.FlagReadOnly) {
			return fmt.Errorf("%s: %w", prop.Name(), types.ErrReadOnly)
		}
		value := in
		if len(path) > 0 {
			cur, err := property.Generic(prop)
			if err != nil {
				return err
			}
			if value, err = setPath(codec.ToJSON(cur), path, in); err != nil {
				return err
			}
		}
		if err := prop.SetGeneric(value); err != nil {
			return err
		}
		v, err := property.Generic(prop)
		if err != nil {
			return err
		}
		out = codec.ToJSON(v)
		return nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": p.Get("name"), "value": out})
}

// setPath replaces the member of a JSON tree addressed by path with v and
// returns the updated tree.
func setPath(tree any, path []types.PathSegment, v any) (any, error) {
	if len(path) == 0 {
		return v, nil
	}
	seg := path[0]
	switch node := tree.(type) {
	case map[string]any:
		if seg.IsIndex {
			return nil, fmt.Errorf("%s: %w", seg, types.ErrFieldNotFound)
		}
		child, ok := node[seg.Key]
		if !ok {
			return nil, fmt.Errorf("%s: %w", seg, types.ErrFieldNotFound)
		}
		next, err := setPath(child, path[1:], v)
		if err != nil {
			return nil, err
		}
		node[seg.Key] = next
		return node, nil
	case []any:
		if !seg.IsIndex || seg.Index < 0 || seg.Index >= len(node) {
			return nil, fmt.Errorf("%s: %w", seg, types.ErrFieldNotFound)
		}
		next, err := setPath(node[seg.Index], path[1:], v)
		if err != nil {
			return nil, err
		}
		node[seg.Index] = next
		return node, nil
	}
	return nil, fmt.Errorf("%s: %w", seg, types.ErrFieldNotFound)
}

func (s *Server) propertySchema(w http.ResponseWriter, r *http.Request, p Params) {
	var out map[string]any
	err := s.sys.Exec(r.Context(), func() error {
		prop, err := s.visible(p.Get("name"))
		if err != nil {
			return err
		}
		out, err = PropertySchema(prop)
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
