// ABOUTME: JSON response shapes for the owner API
// ABOUTME: Converts store structs into stable wire representations

package webapi

import (
	"time"

	"github.com/scopebook/scopebook/internal/store"
)

type estimateResponse struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	CreatedAt time.Time  `json:"created_at"`
	SyncedAt  *time.Time `json:"synced_at,omitempty"`
}

type sectionResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	SortOrder int    `json:"sort_order"`
}

type itemResponse struct {
	ID        string  `json:"id"`
	SectionID string  `json:"section_id"`
	DisplayNo string  `json:"display_no"`
	Name      string  `json:"name"`
	Unit      string  `json:"unit"`
	Quantity  float64 `json:"quantity"`
	SortOrder int     `json:"sort_order"`
}

type viewResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	LinkToken string `json:"link_token"`
	Protected bool   `json:"protected"`
	Intro     string `json:"intro,omitempty"`
	SortOrder int    `json:"sort_order"`
}

type versionResponse struct {
	ID        string    `json:"id"`
	Number    int       `json:"number"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type itemSettingResponse struct {
	Price   float64 `json:"price"`
	Total   float64 `json:"total"`
	Visible bool    `json:"visible"`
}

type itemNodeResponse struct {
	itemResponse
	Settings map[string]itemSettingResponse `json:"settings"`
}

type sectionNodeResponse struct {
	sectionResponse
	Visibility map[string]bool    `json:"visibility"`
	Items      []itemNodeResponse `json:"items"`
}

type treeResponse struct {
	Estimate estimateResponse      `json:"estimate"`
	Views    []viewResponse        `json:"views"`
	Sections []sectionNodeResponse `json:"sections"`
}

func estimateJSON(est *store.Estimate) estimateResponse {
	return estimateResponse{
		ID:        est.ID,
		Title:     est.Title,
		CreatedAt: est.CreatedAt,
		SyncedAt:  est.SyncedAt,
	}
}

func sectionJSON(sec *store.Section) sectionResponse {
	return sectionResponse{ID: sec.ID, Name: sec.Name, SortOrder: sec.SortOrder}
}

func itemJSON(item *store.Item) itemResponse {
	return itemResponse{
		ID:        item.ID,
		SectionID: item.SectionID,
		DisplayNo: item.DisplayNo,
		Name:      item.Name,
		Unit:      item.Unit,
		Quantity:  item.Quantity,
		SortOrder: item.SortOrder,
	}
}

// viewJSON never serializes the password, only whether one is set.
func viewJSON(view *store.View) viewResponse {
	return viewResponse{
		ID:        view.ID,
		Name:      view.Name,
		LinkToken: view.LinkToken,
		Protected: view.Password != "",
		Intro:     view.Intro,
		SortOrder: view.SortOrder,
	}
}

func versionJSON(ver *store.Version) versionResponse {
	return versionResponse{
		ID:        ver.ID,
		Number:    ver.Number,
		Name:      ver.Name,
		CreatedAt: ver.CreatedAt,
	}
}

func treeJSON(tree *store.EstimateTree) treeResponse {
	out := treeResponse{
		Estimate: estimateJSON(tree.Estimate),
		Views:    make([]viewResponse, 0, len(tree.Views)),
		Sections: make([]sectionNodeResponse, 0, len(tree.Sections)),
	}
	for _, view := range tree.Views {
		out.Views = append(out.Views, viewJSON(view))
	}
	for _, sec := range tree.Sections {
		node := sectionNodeResponse{
			sectionResponse: sectionJSON(sec.Section),
			Visibility:      sec.Visibility,
			Items:           make([]itemNodeResponse, 0, len(sec.Items)),
		}
		for _, it := range sec.Items {
			itemNode := itemNodeResponse{
				itemResponse: itemJSON(it.Item),
				Settings:     make(map[string]itemSettingResponse, len(it.Settings)),
			}
			for viewID, setting := range it.Settings {
				itemNode.Settings[viewID] = itemSettingResponse{
					Price:   setting.Price,
					Total:   setting.Total,
					Visible: setting.Visible,
				}
			}
			node.Items = append(node.Items, itemNode)
		}
		out.Sections = append(out.Sections, node)
	}
	return out
}

type versionViewResponse struct {
	ID        string `json:"id"`
	SourceID  string `json:"source_id"`
	Name      string `json:"name"`
	Intro     string `json:"intro,omitempty"`
	SortOrder int    `json:"sort_order"`
}

type versionItemResponse struct {
	ID        string                         `json:"id"`
	SourceID  string                         `json:"source_id"`
	DisplayNo string                         `json:"display_no"`
	Name      string                         `json:"name"`
	Unit      string                         `json:"unit"`
	Quantity  float64                        `json:"quantity"`
	SortOrder int                            `json:"sort_order"`
	Settings  map[string]itemSettingResponse `json:"settings"`
}

type versionSectionResponse struct {
	ID         string                `json:"id"`
	SourceID   string                `json:"source_id"`
	Name       string                `json:"name"`
	SortOrder  int                   `json:"sort_order"`
	Visibility map[string]bool       `json:"visibility"`
	Items      []versionItemResponse `json:"items"`
}

type versionTreeResponse struct {
	Version  versionResponse          `json:"version"`
	Views    []versionViewResponse    `json:"views"`
	Sections []versionSectionResponse `json:"sections"`
}

func versionTreeJSON(tree *store.VersionTree) versionTreeResponse {
	out := versionTreeResponse{
		Version:  versionJSON(tree.Version),
		Views:    make([]versionViewResponse, 0, len(tree.Views)),
		Sections: make([]versionSectionResponse, 0, len(tree.Sections)),
	}
	for _, view := range tree.Views {
		out.Views = append(out.Views, versionViewResponse{
			ID:        view.ID,
			SourceID:  view.SourceID,
			Name:      view.Name,
			Intro:     view.Intro,
			SortOrder: view.SortOrder,
		})
	}

	sectionVisibility := make(map[string]map[string]bool)
	for _, ss := range tree.SectionSettings {
		if sectionVisibility[ss.VersionSectionID] == nil {
			sectionVisibility[ss.VersionSectionID] = make(map[string]bool)
		}
		sectionVisibility[ss.VersionSectionID][ss.VersionViewID] = ss.Visible
	}
	itemSettings := make(map[string]map[string]itemSettingResponse)
	for _, is := range tree.ItemSettings {
		if itemSettings[is.VersionItemID] == nil {
			itemSettings[is.VersionItemID] = make(map[string]itemSettingResponse)
		}
		itemSettings[is.VersionItemID][is.VersionViewID] = itemSettingResponse{
			Price:   is.Price,
			Total:   is.Total,
			Visible: is.Visible,
		}
	}

	for _, sec := range tree.Sections {
		node := versionSectionResponse{
			ID:         sec.ID,
			SourceID:   sec.SourceID,
			Name:       sec.Name,
			SortOrder:  sec.SortOrder,
			Visibility: sectionVisibility[sec.ID],
		}
		for _, it := range tree.Items[sec.ID] {
			node.Items = append(node.Items, versionItemResponse{
				ID:        it.ID,
				SourceID:  it.SourceID,
				DisplayNo: it.DisplayNo,
				Name:      it.Name,
				Unit:      it.Unit,
				Quantity:  it.Quantity,
				SortOrder: it.SortOrder,
				Settings:  itemSettings[it.ID],
			})
		}
		out.Sections = append(out.Sections, node)
	}
	return out
}
