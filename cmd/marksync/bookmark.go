package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/notebridge/marksync/pkg/api"
	"github.com/notebridge/marksync/pkg/bookmarks"
)

// Bookmark commands operate on the daemon's local tree through the
// control API, which exercises the capture pipeline end-to-end.
var bookmarkCmd = &cobra.Command{
	Use:   "bookmark",
	Short: "Manage the local bookmark tree",
}

var bookmarkAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a bookmark (or, without --url, a folder)",
	RunE: func(cmd *cobra.Command, args []string) error {
		parent, _ := cmd.Flags().GetString("parent")
		title, _ := cmd.Flags().GetString("title")
		url, _ := cmd.Flags().GetString("url")

		req := api.CreateBookmarkRequest{ParentID: parent, Title: title, URL: url}
		if cmd.Flags().Changed("index") {
			index, _ := cmd.Flags().GetInt("index")
			req.Index = &index
		}

		node, err := apiClient(cmd).CreateBookmark(req)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Created %s (ID: %s)\n", kindOf(node), node.ID)
		return nil
	},
}

var bookmarkLsCmd = &cobra.Command{
	Use:   "ls [folder-id]",
	Short: "List a folder's children, or the whole tree",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := apiClient(cmd)

		if len(args) == 1 {
			children, err := c.ListChildren(args[0])
			if err != nil {
				return err
			}
			for _, child := range children {
				printNode(child, 0)
			}
			return nil
		}

		root, err := c.GetTree()
		if err != nil {
			return err
		}
		printTree(root, 0)
		return nil
	},
}

var bookmarkRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Remove a bookmark or folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		recursive, _ := cmd.Flags().GetBool("recursive")
		if err := apiClient(cmd).RemoveBookmark(args[0], recursive); err != nil {
			return err
		}
		fmt.Printf("✓ Removed %s\n", args[0])
		return nil
	},
}

var bookmarkMvCmd = &cobra.Command{
	Use:   "mv <id>",
	Short: "Move a node to another folder or position",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parent, _ := cmd.Flags().GetString("parent")
		req := api.MoveBookmarkRequest{ParentID: parent}
		if cmd.Flags().Changed("index") {
			index, _ := cmd.Flags().GetInt("index")
			req.Index = &index
		}

		node, err := apiClient(cmd).MoveBookmark(args[0], req)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Moved %s under %s (index %d)\n", node.ID, node.ParentID, node.Index)
		return nil
	},
}

func init() {
	bookmarkAddCmd.Flags().String("parent", "", "Parent folder id (required)")
	bookmarkAddCmd.Flags().String("title", "", "Title")
	bookmarkAddCmd.Flags().String("url", "", "URL; empty creates a folder")
	bookmarkAddCmd.Flags().Int("index", 0, "Position among siblings (default: append)")
	_ = bookmarkAddCmd.MarkFlagRequired("parent")

	bookmarkRmCmd.Flags().Bool("recursive", false, "Remove a folder and everything beneath it")

	bookmarkMvCmd.Flags().String("parent", "", "Destination folder id (required)")
	bookmarkMvCmd.Flags().Int("index", 0, "Position among siblings (default: append)")
	_ = bookmarkMvCmd.MarkFlagRequired("parent")

	bookmarkCmd.AddCommand(bookmarkAddCmd)
	bookmarkCmd.AddCommand(bookmarkLsCmd)
	bookmarkCmd.AddCommand(bookmarkRmCmd)
	bookmarkCmd.AddCommand(bookmarkMvCmd)
}

func kindOf(node *bookmarks.Node) string {
	if node.IsFolder() {
		return "folder"
	}
	return "bookmark"
}

func printNode(node *bookmarks.Node, depth int) {
	indent := strings.Repeat("  ", depth)
	if node.IsFolder() {
		fmt.Printf("%s%s/  (%s)\n", indent, node.Title, node.ID)
		return
	}
	fmt.Printf("%s%s  %s  (%s)\n", indent, node.Title, node.URL, node.ID)
}

func printTree(node *bookmarks.Node, depth int) {
	printNode(node, depth)
	for _, child := range node.Children {
		printTree(child, depth+1)
	}
}
